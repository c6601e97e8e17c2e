package goble

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
)

// fakeAdvertisement overrides the fields the transport reads; the embedded
// interface is never called.
type fakeAdvertisement struct {
	ble.Advertisement
	name string
	addr string
	rssi int
}

func (a fakeAdvertisement) LocalName() string { return a.name }
func (a fakeAdvertisement) Addr() ble.Addr    { return ble.NewAddr(a.addr) }
func (a fakeAdvertisement) RSSI() int         { return a.rssi }

type fakeCentral struct {
	mu sync.Mutex

	adverts   []ble.Advertisement
	scanErr   error
	blockScan bool

	dialErr error
	client  *fakeClient
	dialed  []string
}

func (c *fakeCentral) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	for _, adv := range c.adverts {
		h(adv)
	}
	if c.scanErr != nil {
		return c.scanErr
	}
	if c.blockScan {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

// parallelCentral delivers every advertisement from its own goroutine, the
// way a platform stack with several HCI readers can.
type parallelCentral struct {
	fakeCentral
}

func (c *parallelCentral) Scan(_ context.Context, _ bool, h ble.AdvHandler) error {
	var wg sync.WaitGroup
	for _, adv := range c.adverts {
		adv := adv
		wg.Add(1)
		go func() {
			defer wg.Done()
			h(adv)
		}()
	}
	wg.Wait()
	return nil
}

func (c *fakeCentral) Dial(_ context.Context, address string) (gattClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialed = append(c.dialed, address)
	if c.dialErr != nil {
		return nil, c.dialErr
	}
	return c.client, nil
}

type writeCall struct {
	uuid  string
	data  []byte
	noRsp bool
}

type fakeClient struct {
	mu sync.Mutex

	profile     *ble.Profile
	discoverErr error

	writeErr   error
	writeDelay time.Duration
	writes     []writeCall

	cancelErr   error
	cancelCalls int

	disc     chan struct{}
	discOnce sync.Once
}

func newFakeClient(profile *ble.Profile) *fakeClient {
	return &fakeClient{profile: profile, disc: make(chan struct{})}
}

func (c *fakeClient) DiscoverProfile(bool) (*ble.Profile, error) {
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	return c.profile, nil
}

func (c *fakeClient) WriteCharacteristic(ch *ble.Characteristic, value []byte, noRsp bool) error {
	c.mu.Lock()
	delay := c.writeDelay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, writeCall{uuid: ch.UUID.String(), data: append([]byte(nil), value...), noRsp: noRsp})
	return nil
}

func (c *fakeClient) CancelConnection() error {
	c.mu.Lock()
	c.cancelCalls++
	c.mu.Unlock()
	c.drop()
	return c.cancelErr
}

func (c *fakeClient) Disconnected() <-chan struct{} {
	return c.disc
}

// drop simulates the peripheral going away.
func (c *fakeClient) drop() {
	c.discOnce.Do(func() { close(c.disc) })
}

// setWrite programs the outcome of later writes. An abandoned write may still
// be running, so the fields are only touched under mu.
func (c *fakeClient) setWrite(delay time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDelay = delay
	c.writeErr = err
}

func (c *fakeClient) resetWrites() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = nil
}

func (c *fakeClient) writeCalls() []writeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]writeCall(nil), c.writes...)
}

func (c *fakeClient) cancels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelCalls
}

// speakerProfile mirrors the GATT layout of a Beoplay speaker.
func speakerProfile() *ble.Profile {
	return &ble.Profile{
		Services: []*ble.Service{
			{
				UUID: ble.MustParse("0000fe89-0000-1000-8000-00805f9b34fb"),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.MustParse("44fa50b2-d0a3-472e-a939-d80cf17638bb"), Property: ble.CharRead | ble.CharWrite},
					{UUID: ble.MustParse("7dd2f744-16c4-4c58-88a4-0fafecc78343"), Property: ble.CharWriteNR},
					{UUID: ble.MustParse("b8f2a1c4-5d3e-4f6a-9b7c-2e1d0a9f8c7b"), Property: ble.CharRead | ble.CharNotify},
				},
			},
			{
				UUID: ble.MustParse("180a"),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.MustParse("2a29"), Property: ble.CharRead},
				},
			},
		},
	}
}
