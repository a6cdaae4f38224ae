package selfplay

import (
	"fmt"
	"strings"

	"github.com/brensch/threes/game"
)

// FormatBoard renders the board as a fixed-width grid followed by the hint line.
func FormatBoard(b game.Board, hints []int) string {
	var sb strings.Builder
	sb.WriteString("+------+------+------+------+\n")
	for _, row := range b {
		sb.WriteString("|")
		for _, v := range row {
			if v == 0 {
				sb.WriteString("      |")
				continue
			}
			sb.WriteString(fmt.Sprintf(" %4d |", v))
		}
		sb.WriteString("\n+------+------+------+------+\n")
	}
	if len(hints) > 0 {
		parts := make([]string, len(hints))
		for i, h := range hints {
			parts[i] = fmt.Sprint(h)
		}
		sb.WriteString("next: " + strings.Join(parts, "/") + "\n")
	}
	return sb.String()
}
