package validate

import "github.com/nexuscore/nexus/reqctx"

// Source names where a StructSchema binds its target struct from before
// validating it.
type Source int

const (
	SourceBody Source = iota
	SourceQuery
	SourcePath
	SourceAny
)

// StructSchema implements pipeline.Schema by structural typing (a
// Validate(c *reqctx.Context) error method): it binds the request into a
// fresh struct via New, runs Struct validation, and stashes the bound
// value on the context under ContextKey for the handler to retrieve with
// c.Get(ContextKey) — so a route only declares the schema once and the
// handler never re-parses the body.
type StructSchema struct {
	// New returns a pointer to a fresh zero value of the target struct.
	New func() any
	// Source selects which request data BindJSON/BindQuery/BindPath/BindAny binds from.
	Source Source
	// ContextKey, if set, is where the bound+validated value is stored
	// for the handler; the schema step runs before beforeHandler.
	ContextKey string
}

func (s StructSchema) Validate(c *reqctx.Context) error {
	v := s.New()

	var err error
	switch s.Source {
	case SourceQuery:
		err = c.BindQuery(v)
	case SourcePath:
		err = c.BindPath(v)
	case SourceAny:
		err = c.BindAny(v)
	default:
		err = c.BindJSON(v)
	}
	if err != nil {
		return err
	}

	if err := Struct(v); err != nil {
		return err
	}

	if s.ContextKey != "" {
		c.Set(s.ContextKey, v)
	}
	return nil
}
