package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"mediadl/backend/internal/auth"
	"mediadl/backend/internal/config"
	"mediadl/backend/internal/logger"
	"mediadl/backend/internal/service"
	"mediadl/backend/internal/storage/gormdb"
)

func main() {
	withKey := flag.Bool("api-key", false, "同时生成一个 API Key")
	expiryDays := flag.Int("expiry-days", 0, "API Key 有效天数，0 表示默认值")
	flag.Usage = func() {
		fmt.Println("Usage: create-user [-api-key] [-expiry-days N] <username> <email> <password>")
	}
	flag.Parse()

	if flag.NArg() < 3 {
		flag.Usage()
		os.Exit(1)
	}
	username, email, password := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.Type == "" || cfg.Database.DSN == "" {
		fmt.Println("A database is required: set MEDIADL_DATABASE_TYPE and MEDIADL_DATABASE_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	store, err := gormdb.Open(cfg.Database, logger.NewGormLogger(zap.NewNop(), false))
	if err != nil {
		fmt.Printf("Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// 与注册接口走同一套校验
	authService := auth.NewService(store, auth.NewJWTManager(cfg.JWT), nil)
	user, err := authService.Register(auth.RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ User created successfully!\n")
	fmt.Printf("  ID:       %s\n", user.ID)
	fmt.Printf("  Username: %s\n", user.Username)
	fmt.Printf("  Email:    %s\n", user.Email)

	if !*withKey {
		return
	}

	keys := service.NewAPIKeyService(store, cfg.APIKey, nil, nil)
	key, err := keys.Generate(service.GenerateInput{UserID: user.ID, Name: "CLI", ExpiryDays: *expiryDays})
	if err != nil {
		fmt.Printf("Failed to generate API key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  API Key:  %s\n", key.Key)
	fmt.Printf("  Expires:  %s\n", key.ExpiresAt.Format("2006-01-02 15:04 MST"))
}
