// Package convert is the boundary to the external model converter. The
// pipeline hands over a compiled primary file and a loader; everything past
// that point belongs to the collaborator.
package convert

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/h2non/filetype"

	"packfetch/internal/asset"
	"packfetch/internal/utils"
)

// Converter consumes the selected primary compiled file. The loader lets
// the converter pull referenced resources out of the package tree.
type Converter interface {
	Convert(ctx context.Context, primaryPath string, loader *asset.Loader) error
}

// CommandConverter shells out to a configured external converter, appending
// the primary file path as the final argument.
type CommandConverter struct {
	// Command is the executable plus leading arguments.
	Command []string
}

// Convert runs the external command with the package root as working
// directory so relative resource references resolve naturally.
func (c *CommandConverter) Convert(ctx context.Context, primaryPath string, loader *asset.Loader) error {
	if len(c.Command) == 0 {
		return fmt.Errorf("convert: no converter command configured")
	}

	SniffPrimary(primaryPath)

	args := append(append([]string(nil), c.Command[1:]...), primaryPath)
	cmd := exec.CommandContext(ctx, c.Command[0], args...)
	cmd.Dir = loader.Root()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	utils.Debug("Invoking converter: %v %s", c.Command, primaryPath)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("convert: %s: %w", c.Command[0], err)
	}
	return nil
}

// SniffPrimary logs the magic-byte type of the primary file. Compiled Source
// assets are not in filetype's database, so an unknown match is normal; the
// sniff exists to flag obviously wrong payloads (HTML error pages and the
// like) in the debug log.
func SniffPrimary(path string) {
	if !utils.IsVerbose() {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	header := make([]byte, 512)
	n, _ := f.Read(header)
	header = header[:n]

	if kind, _ := filetype.Match(header); kind != filetype.Unknown {
		utils.Debug("Primary asset magic type: %s (%s)", kind.Extension, kind.MIME.Value)
	} else {
		utils.Debug("Primary asset magic type: unknown (expected for compiled assets)")
	}
}
