package main

import (
	"testing"

	"github.com/dkeye/groupcall/internal/adapters/memory"
	"github.com/dkeye/groupcall/internal/adapters/rtc"
	"github.com/dkeye/groupcall/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewMediaEngine(t *testing.T) {
	req := require.New(t)

	e, err := newMediaEngine(&config.Config{Media: config.Media{Engine: "memory"}})
	req.NoError(err)
	req.IsType(&memory.Engine{}, e)

	e, err = newMediaEngine(&config.Config{Media: config.Media{Engine: "pion"}})
	req.NoError(err)
	req.IsType(&rtc.Engine{}, e)

	_, err = newMediaEngine(&config.Config{Media: config.Media{Engine: "gstreamer"}})
	req.Error(err)
}

func TestRootCmd_Flags(t *testing.T) {
	req := require.New(t)
	cmd := newRootCmd()
	for _, name := range []string{"port", "mode", "config-env"} {
		req.NotNil(cmd.Flags().Lookup(name), name)
	}
}
