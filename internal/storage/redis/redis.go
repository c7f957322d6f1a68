// Package redis предоставляет кэш заказов поверх Redis.
// Кэш работает в режиме read-through: обработчик сначала обращается сюда,
// а при промахе - к основной базе данных (PostgreSQL). Движок жизненного
// цикла инвалидирует запись при каждом переходе состояния заказа.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	"github.com/orderflow/storefront/internal/config"
	"github.com/orderflow/storefront/internal/models"
	"github.com/orderflow/storefront/internal/storage"
)

// Client является оберткой над стандартным клиентом `redis.Client`,
// что позволяет расширять его функциональность, не изменяя
// публичный API пакета.
type Client struct {
	*redis.Client
}

// New создает и настраивает новый клиент для подключения к Redis.
// Функция проверяет соединение с помощью команды PING и возвращает ошибку,
// если Redis недоступен.
func New(ctx context.Context, cfg config.Redis) (*Client, error) {
	address := net.JoinHostPort(cfg.Host, cfg.Port)

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Проверяем, что соединение с Redis установлено и сервер отвечает.
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("can't ping redis: %v", err)
	}

	return &Client{client}, nil
}

// SaveOrder сохраняет заказ в Redis. Данные сериализуются в JSON,
// ключом является `OrderUID` заказа. Запись не имеет срока жизни (TTL=0):
// актуальность обеспечивается инвалидацией при переходах состояния.
func (c *Client) SaveOrder(ctx context.Context, order *models.Order) error {
	const fn = "storage.redis.SaveOrder"

	orderBytes, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("%s: can't marshal order: %v", fn, err)
	}

	if err := c.Set(ctx, order.OrderUID, orderBytes, 0).Err(); err != nil {
		return fmt.Errorf("%s: can't set order: %v", fn, err)
	}

	return nil
}

// GetOrder извлекает заказ из Redis по его `orderUID`.
// Если ключ не найден, возвращается `storage.ErrNoOrder`,
// что позволяет вызывающему коду обратиться к основной БД.
func (c *Client) GetOrder(ctx context.Context, orderUID string) (*models.Order, error) {
	const fn = "storage.redis.GetOrder"

	orderJSON, err := c.Get(ctx, orderUID).Result()
	// `redis.Nil` - специальная ошибка, означающая, что ключ не найден.
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNoOrder
	}
	if err != nil {
		return nil, fmt.Errorf("%s: can't get order: %v", fn, err)
	}

	order := &models.Order{}
	if err := json.Unmarshal([]byte(orderJSON), order); err != nil {
		return nil, fmt.Errorf("%s: can't unmarshal order json: %v", fn, err)
	}

	return order, nil
}

// Invalidate удаляет заказ из кэша. Вызывается движком при каждом
// переходе состояния, чтобы читатели не видели устаревший заказ.
func (c *Client) Invalidate(ctx context.Context, orderUID string) error {
	const fn = "storage.redis.Invalidate"

	if err := c.Del(ctx, orderUID).Err(); err != nil {
		return fmt.Errorf("%s: can't delete order: %v", fn, err)
	}

	return nil
}

// Warm загружает переданные заказы в Redis. Вызывается при старте
// приложения для "прогрева" кэша недавними заказами.
func (c *Client) Warm(ctx context.Context, orders []*models.Order) error {
	const fn = "storage.redis.Warm"

	for _, order := range orders {
		orderJSON, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("%s: can't marshal order: %v", fn, err)
		}

		if err := c.Set(ctx, order.OrderUID, orderJSON, 0).Err(); err != nil {
			return fmt.Errorf("%s: can't set order: %v", fn, err)
		}
	}

	return nil
}
