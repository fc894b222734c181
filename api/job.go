// Package api holds the user-facing configuration types for driving a
// translation.
package api

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/lumen/internal/render"
)

// Job describes one translation run. It decodes from an HCL job file:
//
//	input   = "scene.json"
//	frame   = 1.0
//	threads = 4
//	purpose = "render"
//	mask    = ["shape", "light", "shader"]
type Job struct {
	// Input is the scene document path.
	Input string `hcl:"input"`
	// Root restricts the read to a sub-hierarchy; empty reads the whole
	// document.
	Root string `hcl:"root,optional"`
	// Frame is the frame to translate at.
	Frame float64 `hcl:"frame,optional"`
	// MotionBlur and the window override whatever the document's camera
	// shutter would derive.
	MotionBlur  bool    `hcl:"motion_blur,optional"`
	MotionStart float64 `hcl:"motion_start,optional"`
	MotionEnd   float64 `hcl:"motion_end,optional"`
	// Threads selects the worker fan-out; 0 uses the internal
	// dispatcher, 1 is fully synchronous.
	Threads int `hcl:"threads,optional"`
	// Purpose is the accepted purpose token for pruning.
	Purpose string `hcl:"purpose,optional"`
	// Mask lists the converted node categories; empty means all.
	Mask []string `hcl:"mask,optional"`
	// Debug enables conversion tracing.
	Debug bool `hcl:"debug,optional"`
}

// DefaultJob returns a job with the reader's defaults filled in.
func DefaultJob() *Job {
	return &Job{Threads: 1, Purpose: "render"}
}

// LoadJob decodes a job file.
func LoadJob(path string) (*Job, error) {
	job := DefaultJob()
	if err := hclsimple.DecodeFile(path, nil, job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", path, err)
	}
	return job, nil
}

// MaskBits resolves the category names to a conversion mask.
func (j *Job) MaskBits() (render.Mask, error) {
	if len(j.Mask) == 0 {
		return render.MaskAll, nil
	}
	var mask render.Mask
	for _, name := range j.Mask {
		bit, ok := render.MaskNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown mask category %q", name)
		}
		mask |= bit
	}
	return mask, nil
}
