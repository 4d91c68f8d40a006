package restapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/kvprovider"
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/restapi/restapi_handlers"
	st "github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/settings"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidwall/sjson"
)

const healthTimeout = 2 * time.Second

// Pinger checks a redis partition is reachable.
type Pinger interface {
	Ping(ctx context.Context, p kvprovider.Partition) error
}

// Probe is one partition reported by /healthz.
type Probe struct {
	Name      string
	Partition kvprovider.Partition
}

type Ops struct {
	Router *gin.Engine
	kv     Pinger
	probes []Probe
}

// response to hitting '/' on the server
func GetRoot(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/plain")
	_, err := c.Writer.Write([]byte("Azul Bloomcache"))
	if err != nil {
		st.Logger.Err(err).Msg("get root")
	}
}

// Basic middleware to log errors.
func ErrorLoggerMiddleware(c *gin.Context) {
	if c == nil {
		st.Logger.Error().Msg("gin error, couldn't provide error info as context was nil.")
		return
	}
	c.Next()

	for _, err := range c.Errors {
		if c.Request == nil || c.Request.URL == nil {
			st.Logger.Error().Err(err).Msg("gin error, limited detail was Request or Request URL was nil.")
		} else {
			st.Logger.Error().Err(err).Msgf("gin error on route %s %s", c.Request.Method, c.Request.URL)
		}
	}
}

// GetHealth pings every probed partition, any failure reports 503.
func (o *Ops) GetHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	body := `{"status":"ok"}`
	var errs []error
	for _, probe := range o.probes {
		state := "ok"
		if err := o.kv.Ping(ctx, probe.Partition); err != nil {
			state = err.Error()
			errs = append(errs, fmt.Errorf("%s partition %d: %w", probe.Name, probe.Partition, err))
		}
		body, _ = sjson.Set(body, "partitions."+probe.Name, state)
	}
	if len(errs) > 0 {
		restapi_handlers.JSONError(c, http.StatusServiceUnavailable, "redis unavailable", errors.Join(errs...))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(body))
}

func notFound(c *gin.Context) {
	restapi_handlers.JSONError(c, http.StatusNotFound, "not found", fmt.Errorf("no route for %s", c.Request.URL.Path))
}

// NewOps builds the ops router. Lookups are served in process, this listener only reports health,
// metrics and profiles.
func NewOps(kv Pinger, probes ...Probe) *Ops {
	gin.SetMode(gin.ReleaseMode) // don't print route list on start

	st.Logger.Info().Msg("Start Bloomcache ops RestAPI")
	ops := &Ops{kv: kv, probes: probes}
	router := gin.New()
	router.Use(ErrorLoggerMiddleware)

	lpath := "/healthz"
	router.GET(lpath, MetricHandler(lpath, ops.GetHealth))

	// base response
	router.GET("/", GetRoot)
	router.NoRoute(MetricHandler("notfound", notFound))

	pprof.Register(router, "debug/pprof")

	// prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ops.Router = router
	return ops
}

// Serve listens on addr until ctx is cancelled.
func (o *Ops) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: o.Router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	st.Logger.Info().Msg("stopping bloomcache ops restapi")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	st.Logger.Info().Msg("stopped bloomcache ops restapi")
	return nil
}
