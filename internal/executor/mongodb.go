package executor

import (
	"context"
	"encoding/base64"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"opsgate/internal/scriptenv"
)

// driverDatabase adapts *mongo.Database to the scriptenv accessor interfaces.
// Every method materializes cursors into plain Go values before returning, so
// user code never holds server resources past a call.
type driverDatabase struct {
	db *mongo.Database
}

// NewDriverDatabase wraps a mongo database handle for script evaluation.
func NewDriverDatabase(db *mongo.Database) scriptenv.Database {
	return &driverDatabase{db: db}
}

func (d *driverDatabase) Collection(name string) scriptenv.Collection {
	return &driverCollection{coll: d.db.Collection(name)}
}

type driverCollection struct {
	coll *mongo.Collection
}

func (c *driverCollection) Find(ctx context.Context, filter map[string]interface{}) ([]map[string]interface{}, error) {
	cursor, err := c.coll.Find(ctx, bson.M(filter))
	if err != nil {
		return nil, err
	}
	return drainCursor(ctx, cursor)
}

func (c *driverCollection) FindOne(ctx context.Context, filter map[string]interface{}) (map[string]interface{}, error) {
	var doc bson.M
	err := c.coll.FindOne(ctx, bson.M(filter)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return normalizeDoc(doc), nil
}

func (c *driverCollection) InsertOne(ctx context.Context, doc map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.coll.InsertOne(ctx, bson.M(doc))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"acknowledged": true,
		"insertedId":   normalize(res.InsertedID),
	}, nil
}

func (c *driverCollection) InsertMany(ctx context.Context, docs []interface{}) (map[string]interface{}, error) {
	res, err := c.coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	ids := make([]interface{}, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		ids = append(ids, normalize(id))
	}
	return map[string]interface{}{
		"acknowledged":  true,
		"insertedCount": int64(len(ids)),
		"insertedIds":   ids,
	}, nil
}

func (c *driverCollection) UpdateOne(ctx context.Context, filter, update map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.coll.UpdateOne(ctx, bson.M(filter), bson.M(update))
	if err != nil {
		return nil, err
	}
	return updateResult(res), nil
}

func (c *driverCollection) UpdateMany(ctx context.Context, filter, update map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.coll.UpdateMany(ctx, bson.M(filter), bson.M(update))
	if err != nil {
		return nil, err
	}
	return updateResult(res), nil
}

func (c *driverCollection) ReplaceOne(ctx context.Context, filter, replacement map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.coll.ReplaceOne(ctx, bson.M(filter), bson.M(replacement))
	if err != nil {
		return nil, err
	}
	return updateResult(res), nil
}

func (c *driverCollection) DeleteOne(ctx context.Context, filter map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.coll.DeleteOne(ctx, bson.M(filter))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"acknowledged": true, "deletedCount": res.DeletedCount}, nil
}

func (c *driverCollection) DeleteMany(ctx context.Context, filter map[string]interface{}) (map[string]interface{}, error) {
	res, err := c.coll.DeleteMany(ctx, bson.M(filter))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"acknowledged": true, "deletedCount": res.DeletedCount}, nil
}

func (c *driverCollection) Aggregate(ctx context.Context, pipeline []interface{}) ([]map[string]interface{}, error) {
	cursor, err := c.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return drainCursor(ctx, cursor)
}

func (c *driverCollection) CountDocuments(ctx context.Context, filter map[string]interface{}) (int64, error) {
	return c.coll.CountDocuments(ctx, bson.M(filter))
}

func (c *driverCollection) Distinct(ctx context.Context, field string, filter map[string]interface{}) ([]interface{}, error) {
	values, err := c.coll.Distinct(ctx, field, bson.M(filter))
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		out = append(out, normalize(v))
	}
	return out, nil
}

func (c *driverCollection) Drop(ctx context.Context) error {
	return c.coll.Drop(ctx)
}

func drainCursor(ctx context.Context, cursor *mongo.Cursor) ([]map[string]interface{}, error) {
	defer cursor.Close(ctx)
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		out = append(out, normalizeDoc(doc))
	}
	return out, nil
}

func updateResult(res *mongo.UpdateResult) map[string]interface{} {
	out := map[string]interface{}{
		"acknowledged":  true,
		"matchedCount":  res.MatchedCount,
		"modifiedCount": res.ModifiedCount,
	}
	if res.UpsertedID != nil {
		out["upsertedId"] = normalize(res.UpsertedID)
	}
	return out
}

func normalizeDoc(doc bson.M) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts BSON-specific types into JSON-shaped Go values so
// results survive Starlark conversion and JSON serialization.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return val.String()
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(val.Data)
	case primitive.A:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			out = append(out, normalize(item))
		}
		return out
	case primitive.M:
		return normalizeDoc(bson.M(val))
	case primitive.D:
		out := make(map[string]interface{}, len(val))
		for _, elem := range val {
			out[elem.Key] = normalize(elem.Value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(val))
		for _, item := range val {
			out = append(out, normalize(item))
		}
		return out
	default:
		return v
	}
}
