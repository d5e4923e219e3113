package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/swaggo/files"
	"github.com/swaggo/gin-swagger"

	"chatapp/internal/api"
	"chatapp/internal/auth"
	"chatapp/internal/repository"
	"chatapp/internal/service"
	"chatapp/internal/ws"

	"github.com/redis/go-redis/v9"
)

func main() {
	mongoURI := getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoDB := getEnv("MONGODB_DATABASE", "chatapp")
	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")
	jwtSecret := getEnv("JWT_SECRET", "dev-only-secret")
	imageHostURL := getEnv("IMAGE_HOST_URL", "http://localhost:9000/upload")
	imageHostKey := getEnv("IMAGE_HOST_KEY", "")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	repo, err := repository.NewMongoRepo(ctx, mongoURI, mongoDB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	log.Println("Connected to MongoDB")

	redisAddr := redisHost + ":" + redisPort
	presenceClient := initRedis(redisAddr, redisPassword)
	presence := &RedisPresence{client: presenceClient}
	log.Println("Connected to Redis")

	uploader := &ImageHostClient{
		client:  &http.Client{Timeout: 30 * time.Second},
		url:     imageHostURL,
		authKey: imageHostKey,
	}

	hub := ws.NewHub(presence)
	sweeper := ws.NewSweeper(hub, 30*time.Second)
	if err := sweeper.Start(); err != nil {
		log.Fatalf("Failed to start connection sweeper: %v", err)
	}

	serv := service.NewMessageService(repo, repo, uploader, hub)
	sessions := auth.NewMiddleware([]byte(jwtSecret), repo)

	r := gin.Default()
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	handler := api.NewAPIHandler(serv, hub)
	messages := r.Group("/api/messages")
	messages.Use(sessions.RequireAuth())
	{
		messages.GET("/users", handler.ListUsers)
		messages.GET("/:id", handler.GetMessages)
		messages.POST("/send/:id", handler.SendMessage)
		messages.DELETE("/delete-for-me/:messageId", handler.DeleteForMe)
		messages.DELETE("/delete-for-everyone/:messageId", handler.DeleteForEveryone)
		messages.DELETE("/clear-chat/:chatWith", handler.ClearChat)
	}
	r.GET("/ws", handler.ServeWS)

	port := getEnv("PORT", "8080")
	log.Printf("Server starting on port %s...", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func getEnv(key string, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// RedisPresence mirrors the hub's online-user set into Redis so other
// tooling can observe who is connected.
type RedisPresence struct {
	client *redis.Client
}

const onlineUsersKey = "chat:online"

func (rp *RedisPresence) Connect(userID string) error {
	ctx := context.Background()
	return rp.client.SAdd(ctx, onlineUsersKey, userID).Err()
}

func (rp *RedisPresence) Disconnect(userID string) error {
	ctx := context.Background()
	return rp.client.SRem(ctx, onlineUsersKey, userID).Err()
}

func initRedis(addr string, password string) *redis.Client {
	opts := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	}
	client := redis.NewClient(opts)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	return client
}

// ImageHostClient resolves an inline-encoded image to a durable URL by
// handing it to the external image-hosting service.
type ImageHostClient struct {
	client  *http.Client
	url     string
	authKey string
}

func (u *ImageHostClient) Upload(ctx context.Context, image string) (string, error) {
	payload := map[string]string{"file": image}
	bodyBytes, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", u.url, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if u.authKey != "" {
		req.Header.Set("x-api-key", u.authKey)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("received status %d from image host", resp.StatusCode)
	}
	var respData struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return "", fmt.Errorf("failed to parse image host response: %w", err)
	}
	if respData.SecureURL == "" {
		return "", fmt.Errorf("no secure_url in response")
	}
	return respData.SecureURL, nil
}
