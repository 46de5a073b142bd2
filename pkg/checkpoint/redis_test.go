package checkpoint

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestNewRedisStore(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	st := NewRedisStore(client, "tiki", zerolog.Nop())
	if st.Key() != "batchfetch:checkpoint:tiki" {
		t.Errorf("Key() = %q, want %q", st.Key(), "batchfetch:checkpoint:tiki")
	}
}

func TestNewRedisStore_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewRedisStore should panic with nil redis client")
		}
	}()
	NewRedisStore(nil, "x", zerolog.Nop())
}
