package text

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"

	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
)

// Name is the capability name
const Name = "text"

// Binary-to-text encodings handled without a charset
const (
	EncodingBase64 = "base64"
	EncodingHex    = "hex"
)

// Provider converts text between encodings
type Provider struct{}

// New creates the text provider
func New() *Provider {
	return &Provider{}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	encParam := types.Parameter{Name: "encoding", Type: "string", Description: "base64, hex or a charset label such as windows-1252 or shift_jis", Required: true}
	return types.Capability{
		Name:        Name,
		Description: "Text encoding, decoding and charset detection",
		Commands: []types.Command{
			{
				Name:        "encode",
				Description: "Encode UTF-8 text; charset output is returned as base64",
				Parameters: []types.Parameter{
					{Name: "text", Type: "string", Description: "UTF-8 text", Required: true},
					encParam,
				},
				Returns: "object",
			},
			{
				Name:        "decode",
				Description: "Decode to UTF-8 text; charset input is expected as base64",
				Parameters: []types.Parameter{
					{Name: "data", Type: "string", Description: "Encoded data", Required: true},
					encParam,
				},
				Returns: "object",
			},
			{
				Name:        "detect",
				Description: "Guess the charset of base64 encoded bytes",
				Parameters: []types.Parameter{
					{Name: "data", Type: "string", Description: "base64 encoded bytes", Required: true},
				},
				Returns: "object",
			},
		},
	}
}

// Execute runs one command
func (p *Provider) Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error) {
	params, err := service.ParamsOf(data)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case "encode":
		return encode(params)
	case "decode":
		return decode(params)
	case "detect":
		return detect(params)
	default:
		return nil, fmt.Errorf("unknown command: %s.%s", Name, cmd)
	}
}

// lookup resolves a WHATWG charset label
func lookup(label string) (encoding.Encoding, string, error) {
	enc, name := charset.Lookup(label)
	if enc == nil {
		return nil, "", &service.ParamError{Name: "encoding", Reason: fmt.Sprintf("unknown charset %q", label)}
	}
	return enc, name, nil
}

func encode(params service.Params) (interface{}, error) {
	text, err := params.Text("text")
	if err != nil {
		return nil, err
	}
	label, err := params.String("encoding")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(label) {
	case EncodingBase64:
		return map[string]interface{}{"encoding": EncodingBase64, "data": base64.StdEncoding.EncodeToString([]byte(text))}, nil
	case EncodingHex:
		return map[string]interface{}{"encoding": EncodingHex, "data": hex.EncodeToString([]byte(text))}, nil
	}

	enc, name, err := lookup(label)
	if err != nil {
		return nil, err
	}
	out, _, err := transform.Bytes(enc.NewEncoder(), []byte(text))
	if err != nil {
		return nil, fmt.Errorf("encode to %s failed: %w", name, err)
	}
	return map[string]interface{}{"encoding": name, "data": base64.StdEncoding.EncodeToString(out)}, nil
}

func decode(params service.Params) (interface{}, error) {
	input, err := params.Text("data")
	if err != nil {
		return nil, err
	}
	label, err := params.String("encoding")
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(label) {
	case EncodingBase64:
		raw, err := base64.StdEncoding.DecodeString(input)
		if err != nil {
			return nil, &service.ParamError{Name: "data", Reason: "invalid base64"}
		}
		return map[string]interface{}{"encoding": EncodingBase64, "text": string(raw)}, nil
	case EncodingHex:
		raw, err := hex.DecodeString(input)
		if err != nil {
			return nil, &service.ParamError{Name: "data", Reason: "invalid hex"}
		}
		return map[string]interface{}{"encoding": EncodingHex, "text": string(raw)}, nil
	}

	enc, name, err := lookup(label)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return nil, &service.ParamError{Name: "data", Reason: "charset input must be base64"}
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return nil, fmt.Errorf("decode from %s failed: %w", name, err)
	}
	return map[string]interface{}{"encoding": name, "text": string(out)}, nil
}

func detect(params service.Params) (interface{}, error) {
	input, err := params.String("data")
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(input)
	if err != nil {
		return nil, &service.ParamError{Name: "data", Reason: "invalid base64"}
	}

	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil {
		return nil, fmt.Errorf("detect failed: %w", err)
	}
	return map[string]interface{}{
		"charset":    strings.ToLower(result.Charset),
		"language":   result.Language,
		"confidence": result.Confidence,
	}, nil
}
