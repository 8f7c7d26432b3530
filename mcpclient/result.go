package mcpclient

import (
	"reflect"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Result is the outcome of a tool call, classified once at the transport
// boundary. It is one of ErrorResult, TextResult, ImageResult,
// StructuredResult or OpaqueResult.
type Result interface {
	isResult()
}

// ErrorResult is a result flagged as an error by the provider.
type ErrorResult struct {
	Message string
}

// TextResult holds text content items.
type TextResult struct {
	Texts []string
}

// Image is a base64 encoded image content item.
type Image struct {
	Data     string
	MIMEType string
}

// ImageResult holds at least one image, and the text items of the same result.
type ImageResult struct {
	Images []Image
	Texts  []string
}

// StructuredResult holds a mapping or a sequence.
type StructuredResult struct {
	Value any
}

// OpaqueResult holds any other value.
type OpaqueResult struct {
	Value any
}

func (ErrorResult) isResult()      {}
func (TextResult) isResult()       {}
func (ImageResult) isResult()      {}
func (StructuredResult) isResult() {}
func (OpaqueResult) isResult()     {}

// ResultFromCallTool classifies the protocol result.
func ResultFromCallTool(r *mcp.CallToolResult) Result {
	if r == nil {
		return OpaqueResult{}
	}

	var texts []string
	var images []Image
	others := 0
	for _, c := range r.Content {
		switch item := c.(type) {
		case mcp.TextContent:
			texts = append(texts, item.Text)
		case *mcp.TextContent:
			texts = append(texts, item.Text)
		case mcp.ImageContent:
			images = append(images, Image{Data: item.Data, MIMEType: item.MIMEType})
		case *mcp.ImageContent:
			images = append(images, Image{Data: item.Data, MIMEType: item.MIMEType})
		case mcp.EmbeddedResource:
			if tr, ok := mcp.AsTextResourceContents(item.Resource); ok {
				texts = append(texts, tr.Text)
			} else {
				others++
			}
		default:
			others++
		}
	}

	switch {
	case r.IsError:
		msg := strings.Join(texts, "\n")
		if msg == "" {
			msg = "unknown error"
		}
		return ErrorResult{Message: msg}
	case len(images) > 0:
		return ImageResult{Images: images, Texts: texts}
	case len(texts) > 0 && others == 0:
		return TextResult{Texts: texts}
	case r.StructuredContent != nil:
		return StructuredResult{Value: r.StructuredContent}
	case len(r.Content) > 0:
		return StructuredResult{Value: r.Content}
	default:
		return OpaqueResult{}
	}
}

// ResultFromValue classifies a value that did not come from the protocol.
func ResultFromValue(v any) Result {
	switch val := v.(type) {
	case nil:
		return OpaqueResult{}
	case Result:
		return val
	case *mcp.CallToolResult:
		return ResultFromCallTool(val)
	case error:
		return ErrorResult{Message: val.Error()}
	case string:
		return TextResult{Texts: []string{val}}
	case []string:
		return TextResult{Texts: val}
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return StructuredResult{Value: v}
	case reflect.Pointer:
		if e := reflect.ValueOf(v).Elem(); e.IsValid() {
			return ResultFromValue(e.Interface())
		}
	}
	return OpaqueResult{Value: v}
}
