package diagram

import (
	"context"
	"strings"

	"github.com/rendis/flowgraph/pkg/schema"
)

// Output formats accepted by Render.
const (
	FormatASCII   = "ascii"
	FormatMermaid = "mermaid"
	FormatDOT     = "dot"
	FormatSVG     = "svg"
	FormatPNG     = "png"
)

// Formats lists every format Render accepts.
var Formats = []string{FormatASCII, FormatMermaid, FormatDOT, FormatSVG, FormatPNG}

// IsBinary reports whether format produces non-text output.
func IsBinary(format string) bool { return format == FormatPNG }

// Render dispatches to the renderer for format.
func Render(ctx context.Context, model *DiagramModel, format string) ([]byte, error) {
	switch format {
	case FormatASCII:
		return []byte(RenderASCII(model)), nil
	case FormatMermaid:
		return []byte(RenderMermaid(model)), nil
	case FormatDOT:
		dot, err := RenderDOT(ctx, model)
		return []byte(dot), err
	case FormatSVG:
		return RenderSVG(ctx, model)
	case FormatPNG:
		return RenderImage(ctx, model)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"diagram: unknown format %q, want one of %s", format, strings.Join(Formats, ", "))
	}
}
