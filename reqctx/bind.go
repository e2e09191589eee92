package reqctx

import (
	"encoding/json"
	"net/url"
	"reflect"
	"strings"

	ms "github.com/mitchellh/mapstructure"
)

// newMSDecoder is a package-level hook so tests can stub decoder creation.
var newMSDecoder = ms.NewDecoder

// BindOptions customizes how Bind* methods decode payloads into structs.
// Defaults when omitted: ErrorUnused=true (unknown fields error),
// WeaklyTypedInput=false (no implicit coercion).
type BindOptions struct {
	WeaklyTypedInput bool
	ErrorUnused      bool
}

// BindJSON decodes the parsed request body into v. It consumes GetBody()
// rather than the raw reader directly, so BindJSON
// composes with any other code in the request that also calls GetBody()
// instead of racing it for the body stream.
func (c *Context) BindJSON(v any, opts ...BindOptions) error {
	body, err := c.GetBody()
	if err != nil {
		return err
	}
	switch b := body.(type) {
	case nil:
		return nil
	case map[string]any:
		return c.BindMap(v, b, opts...)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return err
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return json.Unmarshal(raw, v)
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return json.Unmarshal(raw, v)
		}
		return c.BindMap(v, m, opts...)
	}
}

// BindMap binds fields from m into v using mapstructure, honoring opts.
func (c *Context) BindMap(v any, m map[string]any, opts ...BindOptions) error {
	var o BindOptions
	if len(opts) > 0 {
		o = opts[0]
	} else {
		o.ErrorUnused = true
	}

	var targetType reflect.Type
	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.Ptr && !rv.IsNil() && rv.Elem().Kind() == reflect.Struct {
		targetType = rv.Elem().Type()
	}

	cfg := &ms.DecoderConfig{
		TagName:          "json",
		Result:           v,
		WeaklyTypedInput: o.WeaklyTypedInput,
		ErrorUnused:      o.ErrorUnused,
	}
	dec, err := newMSDecoder(cfg)
	if err != nil {
		return err
	}
	if err := dec.Decode(m); err != nil {
		if fe := mapMapStructureError(err, o, targetType); fe != nil {
			return fe
		}
		return err
	}
	return nil
}

// BindForm collects form body fields (x-www-form-urlencoded or
// multipart/form-data text fields) and binds them into v.
func (c *Context) BindForm(v any, opts ...BindOptions) error {
	m, err := c.collectFormMap()
	if err != nil {
		return err
	}
	return c.BindMap(v, m, opts...)
}

// BindQuery binds the query string into v (first value per key).
func (c *Context) BindQuery(v any, opts ...BindOptions) error {
	return c.BindMap(v, valuesToMap(c.Query()), opts...)
}

// BindPath binds route params into v.
func (c *Context) BindPath(v any, opts ...BindOptions) error {
	out := make(map[string]any, len(c.Params()))
	for k, val := range c.Params() {
		out[k] = val
	}
	return c.BindMap(v, out, opts...)
}

// BindAny merges query, body (form then JSON), and path into v.
// Precedence (highest wins): path > body > query.
func (c *Context) BindAny(v any, opts ...BindOptions) error {
	out := make(map[string]any, len(c.Query())+len(c.Params()))

	for k, vals := range c.Query() {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}

	body, err := c.GetBody()
	if err != nil {
		return err
	}
	if m, ok := body.(map[string]any); ok {
		for k, val := range m {
			out[k] = val
		}
	}

	for k, val := range c.Params() {
		out[k] = val
	}

	return c.BindMap(v, out, opts...)
}

func (c *Context) collectFormMap() (map[string]any, error) {
	if err := c.raw.ParseForm(); err != nil {
		return nil, err
	}
	if ct := c.raw.Header.Get("Content-Type"); strings.HasPrefix(ct, "multipart/") && c.raw.MultipartForm == nil {
		if err := c.raw.ParseMultipartForm(32 << 20); err != nil {
			return nil, err
		}
	}
	out := valuesToMap(c.raw.PostForm)
	if c.raw.MultipartForm != nil && c.raw.MultipartForm.Value != nil {
		for k, vals := range c.raw.MultipartForm.Value {
			if len(vals) > 0 {
				if _, ok := out[k]; !ok {
					out[k] = vals[0]
				}
			}
		}
	}
	return out, nil
}

func valuesToMap(v url.Values) map[string]any {
	out := map[string]any{}
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// mapMapStructureError converts mapstructure errors into FieldErrors with
// friendly, field-keyed messages.
func mapMapStructureError(err error, o BindOptions, targetType reflect.Type) error {
	s := err.Error()
	if o.ErrorUnused {
		if strings.Contains(s, "has invalid keys:") {
			marker := "has invalid keys:"
			idx := strings.Index(s, marker)
			if idx != -1 {
				list := s[idx+len(marker):]
				if nl := strings.IndexByte(list, '\n'); nl != -1 {
					list = list[:nl]
				}
				list = strings.TrimSpace(list)
				parts := strings.Split(list, ",")
				fe := map[string]string{}
				for _, p := range parts {
					k := strings.TrimSpace(p)
					k = strings.TrimLeft(k, "* '`\"")
					k = strings.Trim(k, "'`\" .;:")
					if k != "" {
						fe[k] = ErrFieldUnexpected.Error()
					}
				}
				if len(fe) > 0 {
					return fieldErrorsFromMap(fe)
				}
			}
		}
	}
	if !o.WeaklyTypedInput {
		if field, ok := extractFieldFromMapStructureTypeError(s); ok {
			if targetType != nil {
				if ft, ok2 := findExpectedFieldType(targetType, field); ok2 {
					return fieldErrorsFromMap(map[string]string{field: expectedTypeLabel(ft) + " " + ErrFieldTypeExpected.Error()})
				}
			}
			return fieldErrorsFromMap(map[string]string{field: ErrFieldInvalidType.Error()})
		}
	}
	return err
}

func extractFieldFromMapStructureTypeError(s string) (string, bool) {
	if strings.HasPrefix(s, " error(s) decoding:") {
		lines := strings.Split(s, "\n")
		for i := len(lines) - 1; i >= 0; i-- {
			line := strings.TrimSpace(lines[i])
			if line != "" {
				s = line
				break
			}
		}
	}
	start := strings.Index(s, "cannot decode '")
	if start == -1 {
		start = strings.Index(s, "invalid type for '")
		if start == -1 {
			s2 := strings.TrimSpace(strings.TrimPrefix(s, "* "))
			q1 := strings.IndexByte(s2, '\'')
			if q1 == -1 {
				return "", false
			}
			q2 := strings.IndexByte(s2[q1+1:], '\'')
			if q2 == -1 {
				return "", false
			}
			field := s2[q1+1 : q1+1+q2]
			if strings.Contains(s2[q1+1+q2+1:], " expected type '") {
				return field, true
			}
			return "", false
		}
		start += len("invalid type for '")
	} else {
		start += len("cannot decode '")
	}
	end := strings.Index(s[start:], "'")
	if end == -1 {
		return "", false
	}
	return s[start : start+end], true
}

func findExpectedFieldType(t reflect.Type, jsonField string) (reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("json")
		if name != "" {
			if idx := strings.Index(name, ","); idx >= 0 {
				name = name[:idx]
			}
			if name == "-" {
				continue
			}
			if strings.EqualFold(name, jsonField) {
				return f.Type, true
			}
		}
		if strings.EqualFold(f.Name, jsonField) {
			return f.Type, true
		}
	}
	return nil, false
}

func expectedTypeLabel(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "int"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "uint"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Bool:
		return "bool"
	case reflect.String:
		return "string"
	case reflect.Array, reflect.Slice:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	default:
		return t.Kind().String()
	}
}
