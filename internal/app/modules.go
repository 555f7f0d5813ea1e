package app

import (
	"io"

	"github.com/vk/chainrun/internal/process"
	"github.com/vk/chainrun/internal/registry"
	"github.com/vk/chainrun/modules/core"
	"github.com/vk/chainrun/modules/eisn"
	"github.com/vk/chainrun/modules/env"
	"github.com/vk/chainrun/modules/httpreq"
	"github.com/vk/chainrun/modules/socketio"
)

// coreModules is the definitive list of modules compiled into the chainrun
// binary.
func coreModules(outW io.Writer, runner process.Runner, workdir string) []registry.Module {
	return []registry.Module{
		&core.Module{Out: outW},
		&env.Module{},
		&httpreq.Module{},
		&socketio.Module{},
		&eisn.Module{Runner: runner, Dir: workdir},
	}
}
