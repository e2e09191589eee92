package reqctx

import (
	"encoding/json"
	"io"
	"mime"
	"net/url"
	"strings"

	"github.com/nexuscore/nexus/nexerr"
)

// GetBody reads and parses the entire request body, dispatching on
// Content-Type: JSON becomes a decoded value, form-urlencoded becomes a
// map with []string values for repeated keys, anything else becomes raw
// text. The read happens at most once per request: sync.Once.Do's
// blocking semantics mean concurrent callers observe the same in-flight
// parse and the same memoized result.
func (c *Context) GetBody() (any, error) {
	c.bodyOnce.Do(func() {
		c.bodyVal, c.bodyErr = c.parseBody()
	})
	return c.bodyVal, c.bodyErr
}

func (c *Context) parseBody() (any, error) {
	if c.raw.Body == nil {
		return nil, nil
	}
	defer c.raw.Body.Close()

	raw, err := io.ReadAll(c.raw.Body)
	if err != nil {
		return nil, nexerr.BodyParse(err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	ct := c.raw.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(ct)

	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, nexerr.BodyParse(err)
		}
		return v, nil
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return nil, nexerr.BodyParse(err)
		}
		out := make(map[string]any, len(values))
		for k, v := range values {
			if len(v) == 1 {
				out[k] = v[0]
			} else {
				out[k] = v
			}
		}
		return out, nil
	default:
		return string(raw), nil
	}
}
