package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/swasthyasetu/appointment-service/internal/appointment"
	"github.com/swasthyasetu/appointment-service/internal/database"
)

// One-shot tool that (re)creates the appointment collection indexes.
// Run after provisioning a new environment or changing index shapes.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "swasthyasetu")
	viper.SetDefault("mongo.timeout", 10*time.Second)
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: config file not found, using defaults: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := database.NewMongoClient(ctx, database.MongoConfig{
		URI:            viper.GetString("mongo.uri"),
		Database:       viper.GetString("mongo.database"),
		MaxPoolSize:    viper.GetUint64("mongo.max_pool_size"),
		MinPoolSize:    viper.GetUint64("mongo.min_pool_size"),
		ConnectTimeout: viper.GetDuration("mongo.timeout"),
	})
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	db := client.Database(viper.GetString("mongo.database"))
	if err := appointment.EnsureIndexes(ctx, db); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	log.Printf("Appointment indexes ensured on %s/%s",
		viper.GetString("mongo.uri"), viper.GetString("mongo.database"))
}
