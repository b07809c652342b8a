// Package presence tracks which devices are currently connected, the way
// the teacher's registry package tracks which service instances are
// currently reachable — re-homed from RPC service discovery onto
// connected-device visibility, using the same etcd TTL-lease mechanism.
package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	clientv3 "go.etcd.io/etcd/client/v3"

	"iot-proto/session"
)

// Descriptor is the JSON value stored in etcd for each connected device,
// the presence counterpart of the teacher's registry.ServiceInstance.
type Descriptor struct {
	DeviceID    string    `json:"device_id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Directory is the interface device presence is published through.
// Nothing in engine calls it; a host calls Announce and Withdraw from its
// own connection handling. EtcdDirectory is the only implementation this
// repo ships.
type Directory interface {
	Announce(deviceID string, c *session.Connection) error
	Withdraw(deviceID string) error
	List(ctx context.Context) ([]Descriptor, error)
}

// EtcdDirectory implements Directory using etcd v3, grounded on the
// teacher's registry.EtcdRegistry (Grant/Put/KeepAlive for
// registration, Delete for withdrawal, Get-with-prefix for listing).
type EtcdDirectory struct {
	client *clientv3.Client
	prefix string
	ttl    int64
}

// NewEtcdDirectory creates a presence directory connected to the given
// etcd endpoints. ttlSeconds controls how quickly a crashed gateway's
// device entries expire if KeepAlive stops (the teacher's Register used
// a 10-second TTL; this repo defaults to the same).
func NewEtcdDirectory(endpoints []string, ttlSeconds int64) (*EtcdDirectory, error) {
	c, err := clientv3.New(clientv3.Config{Endpoints: endpoints})
	if err != nil {
		return nil, err
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 10
	}
	return &EtcdDirectory{client: c, prefix: "/iot-proto/devices/", ttl: ttlSeconds}, nil
}

// Announce publishes deviceID's presence under a TTL lease renewed by
// KeepAlive, exactly as EtcdRegistry.Register renews a service
// registration. If deviceID is empty a uuid is generated so the
// directory always has a stable key per connection.
func (d *EtcdDirectory) Announce(deviceID string, c *session.Connection) error {
	if deviceID == "" {
		deviceID = uuid.NewString()
	}
	ctx := context.TODO()

	lease, err := d.client.Grant(ctx, d.ttl)
	if err != nil {
		return err
	}

	desc := Descriptor{DeviceID: deviceID, RemoteAddr: c.RemoteKey(), ConnectedAt: time.Now()}
	val, err := json.Marshal(desc)
	if err != nil {
		return err
	}

	if _, err := d.client.Put(ctx, d.prefix+deviceID, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := d.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Withdraw removes a device's presence entry.
func (d *EtcdDirectory) Withdraw(deviceID string) error {
	_, err := d.client.Delete(context.TODO(), d.prefix+deviceID)
	return err
}

// List returns every currently-announced device, querying etcd with a
// key prefix exactly as EtcdRegistry.Discover does.
func (d *EtcdDirectory) List(ctx context.Context) ([]Descriptor, error) {
	resp, err := d.client.Get(ctx, d.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var desc Descriptor
		if err := json.Unmarshal(kv.Value, &desc); err != nil {
			continue
		}
		out = append(out, desc)
	}
	return out, nil
}

// Watch mirrors EtcdRegistry.Watch: it emits a fresh device list on any
// change under the devices prefix.
func (d *EtcdDirectory) Watch(ctx context.Context) <-chan []Descriptor {
	ch := make(chan []Descriptor, 1)
	go func() {
		watchChan := d.client.Watch(ctx, d.prefix, clientv3.WithPrefix())
		for range watchChan {
			if list, err := d.List(ctx); err == nil {
				ch <- list
			}
		}
	}()
	return ch
}
