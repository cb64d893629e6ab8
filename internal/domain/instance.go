package domain

import "time"

// InstanceType identifies the database engine behind a DbInstance.
type InstanceType string

// Supported database engines.
const (
	InstancePostgres InstanceType = "POSTGRES"
	InstanceMongoDB  InstanceType = "MONGODB"
)

// DbInstance is the connection descriptor for a managed target database.
// Credentials are AES-encrypted at rest; the instance repository decrypts them
// on read, so Password and MongoURI hold plaintext by the time the core sees
// this struct.
type DbInstance struct {
	ID        int64
	Name      string
	Type      InstanceType
	Host      string
	Port      int
	Username  string
	Password  string
	MongoURI  string
	CreatedAt time.Time
}
