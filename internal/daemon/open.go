package daemon

import (
	"context"
	"fmt"
	"io"

	"github.com/ankittk/missioncontrol/internal/config"
	"github.com/ankittk/missioncontrol/internal/gateway"
	gwgrpc "github.com/ankittk/missioncontrol/internal/gateway/grpc"
	"github.com/ankittk/missioncontrol/internal/manager"
	"github.com/ankittk/missioncontrol/internal/mission"
	"github.com/ankittk/missioncontrol/internal/otel"
	"github.com/ankittk/missioncontrol/internal/retry"
	"github.com/ankittk/missioncontrol/internal/store"
	"github.com/ankittk/missioncontrol/internal/store/postgres"
	"github.com/ankittk/missioncontrol/internal/store/sqlite"
)

// OpenStore opens the store named by cfg.DB. SQLite lives under home.
func OpenStore(ctx context.Context, home string, cfg config.Config) (store.Store, error) {
	switch cfg.DB.Driver {
	case store.DriverPostgres:
		return postgres.Open(ctx, cfg.DB.URL)
	default:
		return sqlite.Open(home)
	}
}

// OpenGateway connects to the gateway transport named by cfg.Gateway. Calls
// are retried per cfg.Retry.
func OpenGateway(cfg config.Config) (gateway.Gateway, io.Closer, error) {
	exec := retry.NewExecutor(cfg.Retry, retry.WithObserver(otel.RetryObserver("gateway")))
	switch cfg.Gateway.Transport {
	case config.TransportStub:
		return gateway.NewStub(), nopCloser{}, nil
	case config.TransportGRPC:
		c, err := gwgrpc.Dial(cfg.Gateway.Addr, exec)
		if err != nil {
			return nil, nil, fmt.Errorf("dial gateway %s: %w", cfg.Gateway.Addr, err)
		}
		return c, c, nil
	default:
		return gateway.NewHTTPClient(cfg.Gateway.URL, exec), nopCloser{}, nil
	}
}

// OpenManager builds a manager over the configured store and gateway and
// loads the persisted mission. pub, when set, receives mission events.
// closeFn stops the manager and releases the store and gateway.
func OpenManager(ctx context.Context, home string, cfg config.Config, pub mission.Publisher) (mgr *manager.Manager, closeFn func() error, err error) {
	st, err := OpenStore(ctx, home, cfg)
	if err != nil {
		return nil, nil, err
	}
	gw, gwCloser, err := OpenGateway(cfg)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	var opts []mission.Option
	if pub != nil {
		opts = append(opts, mission.WithPublisher(pub))
	}
	mgr = manager.New(mission.New(opts...), st, gw)
	mgr.RefreshInterval = cfg.Gateway.RefreshInterval
	closeFn = func() error {
		mgr.Close()
		_ = gwCloser.Close()
		return st.Close()
	}
	if err := mgr.Load(ctx); err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return mgr, closeFn, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
