/*
vkquad opens a window and draws one indexed, vertex coloured quad with
Vulkan, keeping up to two frames in flight and rebuilding the swapchain
whenever the window changes.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vkquad/engine"
	"github.com/spaghettifunk/vkquad/engine/core"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	flag.Parse()

	config, err := engine.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	e, err := engine.New(config)
	if err != nil {
		panic(err)
	}

	if err := e.Initialize(); err != nil {
		if shutdownErr := e.Shutdown(); shutdownErr != nil {
			core.LogError(shutdownErr.Error())
		}
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		core.LogInfo("Received %s, shutting down.", sig)
		e.Stop()
	}()

	// run engine
	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError(err.Error())
		if runErr == nil {
			runErr = err
		}
	}
	if runErr != nil {
		panic(runErr)
	}
}
