package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Hosts        string
	Port         string
	Username     string
	Password     string
	Db           int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (o Options) addr() string {
	host := o.Hosts
	if i := strings.Index(host, ","); i >= 0 {
		host = host[:i]
	}

	return fmt.Sprintf("%s:%s", host, o.Port)
}

// NewClient connects to redis and pings it once.
func NewClient(o Options) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:         o.addr(),
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.Db,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), o.ReadTimeout)
	defer cancel()

	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}
