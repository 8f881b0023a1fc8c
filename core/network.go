package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/switchgear-simulator/model"
)

var (
	ErrDeviceExists       = errors.New("device already exists")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceInvalid      = errors.New("invalid device")
	ErrDeviceInUse        = errors.New("device is referenced by connections or rules")
	ErrConnectionExists   = errors.New("connection already exists")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionInvalid  = errors.New("invalid connection")
	ErrUnknownEndpoint    = errors.New("connection references unknown device")
	ErrRuleExists         = errors.New("interlock rule already exists")
	ErrRuleNotFound       = errors.New("interlock rule not found")
	ErrRuleInvalid        = errors.New("invalid interlock rule")
)

// Network is the switchgear graph: devices, connections and interlock rules.
//
// It is safe for concurrent use. Device state, motion, protection and health
// are only written through Mutate, which the command scheduler and the
// protection engine own; everything else reads copies.
type Network struct {
	mu sync.RWMutex

	devices     map[string]*model.Device
	deviceOrder []string

	connections     map[string]*model.Connection
	connectionOrder []string
	byDevice        map[string]map[string]struct{}

	rules []model.InterlockRule
}

// Snapshot is a consistent copy of the network. Order follows insertion.
type Snapshot struct {
	Devices     []model.Device
	Connections []model.Connection
	Rules       []model.InterlockRule
}

// NewNetwork creates an empty network.
func NewNetwork() *Network {
	return &Network{
		devices:     make(map[string]*model.Device),
		connections: make(map[string]*model.Connection),
		byDevice:    make(map[string]map[string]struct{}),
	}
}

//
// ---------- Devices ----------
//

// AddDevice validates and inserts d. Switching devices without a state
// start open and devices without a health are ok.
func (n *Network) AddDevice(d model.Device) error {
	d = d.Clone()
	if err := normalizeDevice(&d); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.devices[d.ID]; exists {
		return fmt.Errorf("%w: %q", ErrDeviceExists, d.ID)
	}
	n.devices[d.ID] = &d
	n.deviceOrder = append(n.deviceOrder, d.ID)
	return nil
}

func normalizeDevice(d *model.Device) error {
	if d.ID == "" {
		return fmt.Errorf("%w: empty device ID", ErrDeviceInvalid)
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("%w: %q has unknown kind %q", ErrDeviceInvalid, d.ID, d.Kind)
	}
	if d.Kind.Switching() {
		if d.State == "" {
			d.State = model.StateOpen
		}
		if !d.State.Valid() {
			return fmt.Errorf("%w: %q has unknown state %q", ErrDeviceInvalid, d.ID, d.State)
		}
	} else if d.State != "" {
		return fmt.Errorf("%w: %s %q cannot carry a switch state", ErrDeviceInvalid, d.Kind, d.ID)
	}
	if d.SourceEnergized && d.Kind != model.KindSource {
		return fmt.Errorf("%w: only sources can be energized, %q is a %s", ErrDeviceInvalid, d.ID, d.Kind)
	}
	if d.Protection != nil {
		if !d.Kind.Protected() {
			return fmt.Errorf("%w: protection settings on %s %q", ErrDeviceInvalid, d.Kind, d.ID)
		}
		if d.Protection.Attempts < 0 || d.Protection.DeadTime < 0 || d.Protection.SettleTime < 0 {
			return fmt.Errorf("%w: negative protection settings on %q", ErrDeviceInvalid, d.ID)
		}
	}
	switch d.Health {
	case "":
		d.Health = model.HealthOK
	case model.HealthOK, model.HealthFailed, model.HealthDestroyed:
	default:
		return fmt.Errorf("%w: %q has unknown health %q", ErrDeviceInvalid, d.ID, d.Health)
	}
	return nil
}

// Device returns a copy of the device with the given ID.
func (n *Network) Device(id string) (model.Device, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	d, ok := n.devices[id]
	if !ok {
		return model.Device{}, false
	}
	return d.Clone(), true
}

// Devices returns copies of all devices in insertion order.
func (n *Network) Devices() []model.Device {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.devicesLocked()
}

func (n *Network) devicesLocked() []model.Device {
	out := make([]model.Device, 0, len(n.deviceOrder))
	for _, id := range n.deviceOrder {
		out = append(out, n.devices[id].Clone())
	}
	return out
}

// Mutate applies fn to the stored device. The device ID and kind cannot be
// changed through fn.
func (n *Network) Mutate(id string, fn func(*model.Device)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	d, ok := n.devices[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	kind := d.Kind
	fn(d)
	d.ID = id
	d.Kind = kind
	return nil
}

// RemoveDevice deletes a device that no connection or rule refers to.
func (n *Network) RemoveDevice(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.devices[id]; !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	if len(n.byDevice[id]) > 0 {
		return fmt.Errorf("%w: %q", ErrDeviceInUse, id)
	}
	for _, r := range n.rules {
		if r.Device == id || r.ConditionDevice == id {
			return fmt.Errorf("%w: %q (rule %q)", ErrDeviceInUse, id, r.ID)
		}
	}
	delete(n.devices, id)
	delete(n.byDevice, id)
	n.deviceOrder = removeID(n.deviceOrder, id)
	return nil
}

//
// ---------- Connections ----------
//

// AddConnection inserts c after checking both endpoints exist.
func (n *Network) AddConnection(c model.Connection) error {
	if c.ID == "" {
		return fmt.Errorf("%w: empty connection ID", ErrConnectionInvalid)
	}
	if c.From == "" || c.To == "" {
		return fmt.Errorf("%w: %q needs two endpoints", ErrConnectionInvalid, c.ID)
	}
	if c.From == c.To {
		return fmt.Errorf("%w: %q connects %q to itself", ErrConnectionInvalid, c.ID, c.From)
	}
	if c.RatingMVA < 0 {
		return fmt.Errorf("%w: %q has a negative rating", ErrConnectionInvalid, c.ID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.connections[c.ID]; exists {
		return fmt.Errorf("%w: %q", ErrConnectionExists, c.ID)
	}
	for _, end := range []string{c.From, c.To} {
		if _, ok := n.devices[end]; !ok {
			return fmt.Errorf("%w: %q on connection %q", ErrUnknownEndpoint, end, c.ID)
		}
	}

	stored := c
	n.connections[c.ID] = &stored
	n.connectionOrder = append(n.connectionOrder, c.ID)
	n.attachLocked(c.ID, c.From)
	n.attachLocked(c.ID, c.To)
	return nil
}

func (n *Network) attachLocked(connID, deviceID string) {
	m, ok := n.byDevice[deviceID]
	if !ok {
		m = make(map[string]struct{})
		n.byDevice[deviceID] = m
	}
	m[connID] = struct{}{}
}

// RemoveConnection deletes a connection.
func (n *Network) RemoveConnection(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	c, ok := n.connections[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrConnectionNotFound, id)
	}
	for _, end := range []string{c.From, c.To} {
		if m, ok := n.byDevice[end]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(n.byDevice, end)
			}
		}
	}
	delete(n.connections, id)
	n.connectionOrder = removeID(n.connectionOrder, id)
	return nil
}

// Connection returns a copy of the connection with the given ID.
func (n *Network) Connection(id string) (model.Connection, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.connections[id]
	if !ok {
		return model.Connection{}, false
	}
	return *c, true
}

// Connections returns all connections in insertion order.
func (n *Network) Connections() []model.Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connectionsLocked()
}

func (n *Network) connectionsLocked() []model.Connection {
	out := make([]model.Connection, 0, len(n.connectionOrder))
	for _, id := range n.connectionOrder {
		out = append(out, *n.connections[id])
	}
	return out
}

// ConnectionsOf returns the connections attached to deviceID, sorted by ID.
func (n *Network) ConnectionsOf(deviceID string) []model.Connection {
	n.mu.RLock()
	defer n.mu.RUnlock()

	ids := make([]string, 0, len(n.byDevice[deviceID]))
	for id := range n.byDevice[deviceID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]model.Connection, 0, len(ids))
	for _, id := range ids {
		out = append(out, *n.connections[id])
	}
	return out
}

//
// ---------- Interlock rules ----------
//

// AddRule appends an interlock rule. Rules are evaluated in insertion order.
func (n *Network) AddRule(r model.InterlockRule) error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty rule ID", ErrRuleInvalid)
	}
	if !r.Target.Valid() || !r.ConditionState.Valid() {
		return fmt.Errorf("%w: %q needs open/closed states", ErrRuleInvalid, r.ID)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for _, existing := range n.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("%w: %q", ErrRuleExists, r.ID)
		}
	}
	for _, id := range []string{r.Device, r.ConditionDevice} {
		d, ok := n.devices[id]
		if !ok {
			return fmt.Errorf("%w: rule %q references unknown device %q", ErrRuleInvalid, r.ID, id)
		}
		if !d.Kind.Switching() {
			return fmt.Errorf("%w: rule %q references non-switching %s %q", ErrRuleInvalid, r.ID, d.Kind, id)
		}
	}
	n.rules = append(n.rules, r)
	return nil
}

// RemoveRule deletes the rule with the given ID.
func (n *Network) RemoveRule(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, r := range n.rules {
		if r.ID == id {
			n.rules = append(n.rules[:i], n.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrRuleNotFound, id)
}

// Rules returns the interlock rules in insertion order.
func (n *Network) Rules() []model.InterlockRule {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]model.InterlockRule(nil), n.rules...)
}

//
// ---------- Whole-network views ----------
//

// Snapshot returns a consistent copy of devices, connections and rules.
func (n *Network) Snapshot() Snapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return Snapshot{
		Devices:     n.devicesLocked(),
		Connections: n.connectionsLocked(),
		Rules:       append([]model.InterlockRule(nil), n.rules...),
	}
}

// Counts returns the number of devices, connections and rules.
func (n *Network) Counts() (devices, connections, rules int) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.devices), len(n.connections), len(n.rules)
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
