package main

import (
	"github.com/AustralianCyberSecurityCentre/azul-bloomcache.git/cmd"
	_ "go.uber.org/automaxprocs"
)

func main() {
	cmd.Execute()
}
