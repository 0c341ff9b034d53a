package main

import (
	"fmt"
	"net/http"
	"os"

	"player-reid-go/internal/app"
	"player-reid-go/internal/config"
	"player-reid-go/internal/database"
	"player-reid-go/internal/handler"
	"player-reid-go/internal/repository"
	"player-reid-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Загружаем .env если он есть
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logrus.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Инициализируем логгер
	logger, err := app.NewLogger(cfg, true)
	if err != nil {
		logrus.Fatalf("Ошибка настройки логгера: %v", err)
	}
	if envErr != nil {
		logger.Debug("Файл .env не найден, используем переменные окружения")
	}

	logger.Info("Запуск Player Re-ID API Server")

	// Инициализируем базу данных
	logger.Info("Подключение к базе данных...")
	if err := database.Connect(); err != nil {
		logger.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer database.Close()

	// Выполняем миграции
	logger.Info("Выполнение миграций базы данных...")
	if err := database.Migrate(); err != nil {
		logger.Fatalf("Ошибка выполнения миграций: %v", err)
	}

	// Проверяем здоровье базы данных
	if err := database.HealthCheck(); err != nil {
		logger.Fatalf("База данных недоступна: %v", err)
	}

	logger.Info("База данных успешно подключена и готова к работе")

	// Создаем папку для артефактов прогонов
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		logger.Fatalf("Ошибка создания папки результатов: %v", err)
	}

	components, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatalf("Ошибка инициализации конвейера: %v", err)
	}
	defer components.Close()

	// Инициализируем репозитории и сервисы
	runRepo := repository.NewRunRepository(database.DB)
	runService := service.NewRunService(runRepo, components.Pipeline, logger, cfg.OutputDir)

	// Инициализируем обработчики
	runHandler := handler.NewRunHandler(runService, components.ModelAPI, database.HealthCheck, logger)
	resolveHandler := handler.NewResolveHandler(components.Pipeline, logger)

	// Настраиваем Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Добавляем middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Обслуживание артефактов прогонов
	router.Static("/outputs", cfg.OutputDir)

	// Регистрируем маршруты
	runHandler.RegisterRoutes(router)
	resolveHandler.RegisterRoutes(router)

	// Добавляем базовый маршрут для проверки
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Player Re-ID API Server",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	// Запускаем сервер
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Сервер запущен на %s", serverAddr)
	logger.Infof("API доступно по адресу: http://localhost:%d/api/v1", cfg.Server.Port)

	if err := router.Run(serverAddr); err != nil {
		logger.Fatalf("Ошибка запуска сервера: %v", err)
	}
}

// corsMiddleware добавляет заголовки CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
