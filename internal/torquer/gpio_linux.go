//go:build linux

package torquer

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// openLines requests the given offsets as outputs, initially low, using the
// Linux GPIO character device.
func openLines(chipName string, offsets []int, consumer string) (lineSetter, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", chipName, err)
	}
	lines, err := chip.RequestLines(offsets, gpiocdev.AsOutput(make([]int, len(offsets))...))
	if err != nil {
		_ = chip.Close()
		return nil, fmt.Errorf("request lines %v on %s: %w", offsets, chipName, err)
	}
	return &gpiodLines{chip: chip, lines: lines}, nil
}

type gpiodLines struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

func (g *gpiodLines) SetValues(values []int) error {
	if g == nil || g.lines == nil {
		return fmt.Errorf("torquer: gpio lines not initialized")
	}
	return g.lines.SetValues(values)
}

func (g *gpiodLines) Close() error {
	if g == nil || g.lines == nil {
		return nil
	}
	err := g.lines.Close()
	g.lines = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
