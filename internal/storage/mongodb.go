// mongodb.go - MongoDB connection lifecycle, unchanged in shape from the
// teacher's InitMongoDB/GetMongoDB/CloseMongoDB trio. The receipt/accounting
// collections the teacher queried (chart of accounts, creditors, debtors,
// shop profiles, receipt drafts) have no equivalent in this domain and are
// not carried over; audit.go (C14) is the sole consumer of GetMongoDB here.
package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/visualaoi/inspector/configs"
)

var mongoClient *mongo.Client
var mongoDB *mongo.Database

// InitMongoDB initializes the MongoDB connection used by the inspection
// audit trail (C14). Absence or failure here degrades audit logging, never
// the inspection path itself - callers in cmd/api treat its error as a
// warning, not a startup failure.
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(configs.MONGO_URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	mongoClient = client
	mongoDB = client.Database(configs.MONGO_DB_NAME)

	log.Println("connected to MongoDB for audit trail")
	return nil
}

// GetMongoDB returns the MongoDB database instance, or nil if audit logging
// is disabled/unavailable.
func GetMongoDB() *mongo.Database {
	return mongoDB
}

// CloseMongoDB closes the MongoDB connection.
func CloseMongoDB() {
	if mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
		log.Println("MongoDB connection closed")
	}
}
