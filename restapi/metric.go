package restapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/prom"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

type loggingResponseWriter struct {
	gin.ResponseWriter
	statusCode   int
	responseBody []byte
}

func newLoggingResponseWriter(c *gin.Context) *loggingResponseWriter {
	return &loggingResponseWriter{c.Writer, http.StatusOK, nil}
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(data []byte) (int, error) {
	outB, err := lrw.ResponseWriter.Write(data)
	if lrw.statusCode >= 400 {
		// collect error response for logging
		lrw.responseBody = append(lrw.responseBody, data...)
	}
	return outB, err
}

type AccessLogLine struct {
	Time                string          `json:"time"`
	DurationS           string          `json:"duration_s"`
	Status              int             `json:"status"`
	Method              string          `json:"method"`
	Route               string          `json:"route"`
	Path                string          `json:"path"`
	Remote              string          `json:"remote"`
	Useragent           string          `json:"user_agent"`
	ResponseBodyInvalid bool            `json:"response_body_invalid,omitempty"`
	ResponseBody        json.RawMessage `json:"response_body,omitempty"`
}

// MetricHandler times the handler, counts response codes and writes an access log line.
// gin does not expose the route template to handlers so it is supplied on startup.
func MetricHandler(tpath string, fn gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		lrw := newLoggingResponseWriter(c)
		c.Writer = lrw

		start := time.Now()
		fn(c)
		elapsed := time.Since(start).Seconds()
		prom.RestapiTimes.WithLabelValues(c.Request.Method, tpath).Observe(elapsed)
		prom.RestapiCodes.WithLabelValues(c.Request.Method, tpath, fmt.Sprintf("%v", lrw.statusCode)).Add(1)

		// encode as json not logfmt to not worry about bad client characters
		line := AccessLogLine{
			Time:         start.Format(time.RFC3339),
			DurationS:    fmt.Sprintf("%.4f", elapsed),
			Status:       lrw.statusCode,
			Method:       c.Request.Method,
			Route:        tpath,
			Path:         c.Request.URL.Path,
			Remote:       c.Request.RemoteAddr,
			Useragent:    c.Request.UserAgent(),
			ResponseBody: lrw.responseBody,
		}
		if len(line.ResponseBody) > 0 && !json.Valid(line.ResponseBody) {
			line.ResponseBody = nil
			line.ResponseBodyInvalid = true
		}
		logline, err := json.Marshal(line)
		if err != nil {
			st.Logger.Error().Err(err).Str("route", tpath).Msg("could not marshal restapi access log line")
			return
		}

		ch := st.ChLogRestapiOk
		if lrw.statusCode >= 400 {
			ch = st.ChLogRestapiErr
		}
		select {
		case ch <- logline:
		default:
			st.Logger.Warn().Str("route", tpath).Msg("restapi access log full, dropping line")
		}
	}
}
