package main

import (
	"github.com/leshachaplin/webtrack/app"
	"github.com/leshachaplin/webtrack/internal/config"
)

func main() {
	app.New(config.Load).Start()
}
