package metrics

// Metrics holds the recorder and player metrics.
type Metrics struct {
	registry *Registry

	EventsRecorded    *Counter
	InputsDropped     *Counter
	EventsPerformed   *Counter
	InjectionErrors   *Counter
	KeysUnmapped      *Counter
	CyclesCompleted   *Counter
	InterferenceStops *Counter

	Recording *Gauge
	Playing   *Gauge

	EventLateness *Histogram
}

// New registers the macrorec metrics on registry. A nil registry gets a
// fresh one with the "macrorec" namespace.
func New(registry *Registry) *Metrics {
	if registry == nil {
		registry = NewRegistry("macrorec")
	}
	return &Metrics{
		registry: registry,

		EventsRecorded: registry.Counter(
			"events_recorded_total",
			"Events appended to the log while recording",
			nil,
		),
		InputsDropped: registry.Counter(
			"inputs_dropped_total",
			"Hook inputs dropped because the recorder queue was full",
			nil,
		),
		EventsPerformed: registry.Counter(
			"events_performed_total",
			"Events injected during playback",
			nil,
		),
		InjectionErrors: registry.Counter(
			"injection_errors_total",
			"Events whose injection failed",
			nil,
		),
		KeysUnmapped: registry.Counter(
			"keys_unmapped_total",
			"Key events skipped because the key has no platform mapping",
			nil,
		),
		CyclesCompleted: registry.Counter(
			"cycles_completed_total",
			"Playback cycles run to the end",
			nil,
		),
		InterferenceStops: registry.Counter(
			"playback_interference_stops_total",
			"Playbacks stopped by user input",
			nil,
		),

		Recording: registry.Gauge(
			"recording",
			"1 while a recording is in progress",
			nil,
		),
		Playing: registry.Gauge(
			"playing",
			"1 while a playback is in progress",
			nil,
		),

		EventLateness: registry.Histogram(
			"event_lateness_seconds",
			"How late each event fired relative to its target time",
			nil,
			LatenessBuckets,
		),
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *Registry {
	return m.registry
}

// Discard returns metrics registered on a private registry, for callers
// that do not export metrics.
func Discard() *Metrics {
	return New(NewRegistry(""))
}
