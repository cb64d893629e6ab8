package scriptenv

import (
	"context"
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// Collection is the narrow set of operations user code may invoke on a Mongo
// collection. Implementations convert cursors to materialized slices so
// scripts never hold server resources past a call.
type Collection interface {
	Find(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error)
	FindOne(ctx context.Context, filter map[string]interface{}) (map[string]interface{}, error)
	InsertOne(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error)
	InsertMany(ctx context.Context, docs []interface{}) (map[string]interface{}, error)
	UpdateOne(ctx context.Context, filter, update map[string]interface{}) (map[string]interface{}, error)
	UpdateMany(ctx context.Context, filter, update map[string]interface{}) (map[string]interface{}, error)
	ReplaceOne(ctx context.Context, filter, replacement map[string]interface{}) (map[string]interface{}, error)
	DeleteOne(ctx context.Context, filter map[string]interface{}) (map[string]interface{}, error)
	DeleteMany(ctx context.Context, filter map[string]interface{}) (map[string]interface{}, error)
	Aggregate(ctx context.Context, pipeline []interface{}) ([]map[string]interface{}, error)
	CountDocuments(ctx context.Context, filter map[string]interface{}) (int64, error)
	Distinct(ctx context.Context, field string, filter map[string]interface{}) ([]interface{}, error)
	Drop(ctx context.Context) error
}

// Database hands out collections by name. Implemented by the mongo driver
// adapter in the executor package and by fakes in tests.
type Database interface {
	Collection(name string) Collection
}

// NewMongoGlobals builds the globals for Mongo query expressions and scripts:
// a `db` value whose attributes are lazily-materialized collection wrappers,
// plus a `collection(name)` helper for names that are not valid identifiers.
func NewMongoGlobals(ctx context.Context, database Database) starlark.StringDict {
	db := &dbValue{ctx: ctx, database: database}
	return starlark.StringDict{
		"db":         db,
		"collection": collectionBuiltin(db),
	}
}

// collectionBuiltin resolves a collection by an arbitrary name string. Bound
// both as the `collection` global and as `db.collection` so the shell idiom
// db.collection("user-events") works too.
func collectionBuiltin(db *dbValue) *starlark.Builtin {
	return starlark.NewBuiltin("collection", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs("collection", args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		return db.collection(name), nil
	})
}

// dbValue is the `db` global. Attribute access materializes a collection
// wrapper for that name, except `collection` which resolves by string.
type dbValue struct {
	ctx      context.Context
	database Database
}

var _ starlark.HasAttrs = (*dbValue)(nil)

func (d *dbValue) String() string        { return "<db>" }
func (d *dbValue) Type() string          { return "database" }
func (d *dbValue) Freeze()               {}
func (d *dbValue) Truth() starlark.Bool  { return starlark.True }
func (d *dbValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: database") }

func (d *dbValue) Attr(name string) (starlark.Value, error) {
	if name == "collection" {
		return collectionBuiltin(d), nil
	}
	return d.collection(name), nil
}

func (d *dbValue) AttrNames() []string { return nil }

func (d *dbValue) collection(name string) *collectionValue {
	return &collectionValue{ctx: d.ctx, name: name, coll: d.database.Collection(name)}
}

// collectionValue wraps one collection and exposes its methods as attributes.
type collectionValue struct {
	ctx  context.Context
	name string
	coll Collection
}

var _ starlark.HasAttrs = (*collectionValue)(nil)

func (c *collectionValue) String() string        { return fmt.Sprintf("<collection %s>", c.name) }
func (c *collectionValue) Type() string          { return "collection" }
func (c *collectionValue) Freeze()               {}
func (c *collectionValue) Truth() starlark.Bool  { return starlark.True }
func (c *collectionValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: collection") }

type collectionMethod func(c *collectionValue, args starlark.Tuple) (starlark.Value, error)

var collectionMethods = map[string]collectionMethod{
	"find": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, err := optionalFilterArg("find", args)
		if err != nil {
			return nil, err
		}
		docs, err := c.coll.Find(c.ctx, filter)
		if err != nil {
			return nil, err
		}
		return docsToStarlark(docs)
	},
	"findOne": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, err := optionalFilterArg("findOne", args)
		if err != nil {
			return nil, err
		}
		doc, err := c.coll.FindOne(c.ctx, filter)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return starlark.None, nil
		}
		return ToStarlark(map[string]interface{}(doc))
	},
	"insertOne": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		doc, err := requiredDictArg("insertOne", args, 0)
		if err != nil {
			return nil, err
		}
		res, err := c.coll.InsertOne(c.ctx, doc)
		if err != nil {
			return nil, err
		}
		return ToStarlark(map[string]interface{}(res))
	},
	"insertMany": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("insertMany: expected 1 argument, got %d", len(args))
		}
		raw, err := FromStarlark(args[0])
		if err != nil {
			return nil, err
		}
		docs, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("insertMany: expected a list of documents")
		}
		res, err := c.coll.InsertMany(c.ctx, docs)
		if err != nil {
			return nil, err
		}
		return ToStarlark(map[string]interface{}(res))
	},
	"updateOne": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, update, err := filterUpdateArgs("updateOne", args)
		if err != nil {
			return nil, err
		}
		res, err := c.coll.UpdateOne(c.ctx, filter, update)
		if err != nil {
			return nil, err
		}
		return ToStarlark(map[string]interface{}(res))
	},
	"updateMany": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, update, err := filterUpdateArgs("updateMany", args)
		if err != nil {
			return nil, err
		}
		res, err := c.coll.UpdateMany(c.ctx, filter, update)
		if err != nil {
			return nil, err
		}
		return ToStarlark(map[string]interface{}(res))
	},
	"replaceOne": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, replacement, err := filterUpdateArgs("replaceOne", args)
		if err != nil {
			return nil, err
		}
		res, err := c.coll.ReplaceOne(c.ctx, filter, replacement)
		if err != nil {
			return nil, err
		}
		return ToStarlark(map[string]interface{}(res))
	},
	"deleteOne": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, err := requiredDictArg("deleteOne", args, 0)
		if err != nil {
			return nil, err
		}
		res, err := c.coll.DeleteOne(c.ctx, filter)
		if err != nil {
			return nil, err
		}
		return ToStarlark(map[string]interface{}(res))
	},
	"deleteMany": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, err := requiredDictArg("deleteMany", args, 0)
		if err != nil {
			return nil, err
		}
		res, err := c.coll.DeleteMany(c.ctx, filter)
		if err != nil {
			return nil, err
		}
		return ToStarlark(map[string]interface{}(res))
	},
	"aggregate": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("aggregate: expected 1 argument, got %d", len(args))
		}
		raw, err := FromStarlark(args[0])
		if err != nil {
			return nil, err
		}
		pipeline, ok := raw.([]interface{})
		if !ok {
			return nil, fmt.Errorf("aggregate: expected a list of pipeline stages")
		}
		docs, err := c.coll.Aggregate(c.ctx, pipeline)
		if err != nil {
			return nil, err
		}
		return docsToStarlark(docs)
	},
	"countDocuments": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		filter, err := optionalFilterArg("countDocuments", args)
		if err != nil {
			return nil, err
		}
		count, err := c.coll.CountDocuments(c.ctx, filter)
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt64(count), nil
	},
	"distinct": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("distinct: expected 1 or 2 arguments, got %d", len(args))
		}
		field, ok := starlark.AsString(args[0])
		if !ok {
			return nil, fmt.Errorf("distinct: field name must be a string")
		}
		filter := map[string]interface{}{}
		if len(args) == 2 {
			var err error
			filter, err = dictArg("distinct", args[1])
			if err != nil {
				return nil, err
			}
		}
		values, err := c.coll.Distinct(c.ctx, field, filter)
		if err != nil {
			return nil, err
		}
		return ToStarlark(values)
	},
	"drop": func(c *collectionValue, args starlark.Tuple) (starlark.Value, error) {
		if len(args) != 0 {
			return nil, fmt.Errorf("drop: expected no arguments, got %d", len(args))
		}
		if err := c.coll.Drop(c.ctx); err != nil {
			return nil, err
		}
		return starlark.None, nil
	},
}

func (c *collectionValue) Attr(name string) (starlark.Value, error) {
	method, ok := collectionMethods[name]
	if !ok {
		return nil, nil // no such attribute
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword arguments", name)
		}
		return method(c, args)
	}), nil
}

func (c *collectionValue) AttrNames() []string {
	names := make([]string, 0, len(collectionMethods))
	for name := range collectionMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func docsToStarlark(docs []map[string]interface{}) (starlark.Value, error) {
	items := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		items = append(items, map[string]interface{}(doc))
	}
	return ToStarlark(items)
}

func optionalFilterArg(method string, args starlark.Tuple) (map[string]interface{}, error) {
	switch len(args) {
	case 0:
		return map[string]interface{}{}, nil
	case 1:
		return dictArg(method, args[0])
	default:
		return nil, fmt.Errorf("%s: expected at most 1 argument, got %d", method, len(args))
	}
}

func requiredDictArg(method string, args starlark.Tuple, index int) (map[string]interface{}, error) {
	if len(args) <= index {
		return nil, fmt.Errorf("%s: missing argument %d", method, index+1)
	}
	return dictArg(method, args[index])
}

func filterUpdateArgs(method string, args starlark.Tuple) (filter, update map[string]interface{}, err error) {
	if len(args) != 2 {
		return nil, nil, fmt.Errorf("%s: expected 2 arguments, got %d", method, len(args))
	}
	if filter, err = dictArg(method, args[0]); err != nil {
		return nil, nil, err
	}
	if update, err = dictArg(method, args[1]); err != nil {
		return nil, nil, err
	}
	return filter, update, nil
}

func dictArg(method string, v starlark.Value) (map[string]interface{}, error) {
	raw, err := FromStarlark(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	doc, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s: expected a document, got %s", method, v.Type())
	}
	return doc, nil
}
