package events

// Collector is embedded in aggregates to collect domain events during state
// transitions.
type Collector struct {
	events []DomainEvent
}

// Record appends an event.
func (c *Collector) Record(event DomainEvent) {
	c.events = append(c.events, event)
}

// Events returns the collected events without clearing them.
func (c *Collector) Events() []DomainEvent {
	return c.events
}

// ClearEvents returns the collected events and resets the collector.
func (c *Collector) ClearEvents() []DomainEvent {
	collected := c.events
	c.events = nil
	return collected
}
