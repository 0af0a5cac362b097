package fileguard

import (
	"context"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/process"
)

// Holder is a process that has a file open.
type Holder struct {
	PID  int32
	Name string
}

// Holders lists the processes with path open. It inspects the real OS process
// table, so it only makes sense for paths on the OS filesystem. Processes
// that cannot be inspected are skipped.
func Holders(ctx context.Context, path string) ([]Holder, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		abs = resolved
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	var holders []Holder
	for _, p := range procs {
		if ctx.Err() != nil {
			return holders, ctx.Err()
		}
		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.Path != abs {
				continue
			}
			name, _ := p.NameWithContext(ctx)
			holders = append(holders, Holder{PID: p.Pid, Name: name})
			break
		}
	}
	return holders, nil
}
