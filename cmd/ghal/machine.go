package main

import (
	"sync"
	"time"

	"github.com/mastercactapus/ghal/estop"
	"github.com/mastercactapus/ghal/feedrate"
	"github.com/mastercactapus/ghal/flowmeter"
	"github.com/mastercactapus/ghal/hal"
	"github.com/mastercactapus/ghal/homing"
	"github.com/mastercactapus/ghal/logic"
	"github.com/mastercactapus/ghal/torque"
	"github.com/mastercactapus/ghal/vfd"
	"github.com/sirupsen/logrus"
)

// machine holds every control-loop component and the signal wiring between
// them. All component inputs and outputs are guarded by mx; the HTTP API
// writes inputs and reads snapshots under the same lock the loop uses.
type machine struct {
	mx sync.Mutex

	torque *torque.Monitor
	estop  *estop.Controller
	seq    *homing.Sequencer
	flow   *flowmeter.Meter
	feed   *feedrate.Calculator
	guard  *logic.ProbeGuard

	// spindle is nil when running without a VFD attached.
	spindle *vfd.Monitor

	resetPulse bool
}

func newMachine(axes string, log *logrus.Logger) (*machine, error) {
	tcfg := torque.DefaultConfig()
	tcfg.Axes = axes
	tm, err := torque.New(tcfg, logrus.NewEntry(log).WithField("component", "torque"))
	if err != nil {
		return nil, err
	}

	ecfg := estop.DefaultConfig()
	ecfg.Axes = axes
	ec, err := estop.New(ecfg, logrus.NewEntry(log).WithField("component", "estop"))
	if err != nil {
		return nil, err
	}

	hcfg := homing.DefaultConfig()
	hcfg.Axes = axes
	seq, err := homing.New(hcfg, logrus.NewEntry(log).WithField("component", "homing"))
	if err != nil {
		return nil, err
	}

	return &machine{
		torque: tm,
		estop:  ec,
		seq:    seq,
		flow:   flowmeter.New(flowmeter.DefaultConfig()),
		feed:   feedrate.New(),
		guard:  logic.NewProbeGuard(logrus.NewEntry(log).WithField("component", "probe")),
	}, nil
}

// register wires the components into the runner. Registration order is
// signal-flow order: the link stage copies the previous cycle's outputs into
// downstream inputs before anything updates.
func (m *machine) register(r *hal.Runner) {
	r.Add("link", m.locked(m.link))
	r.Add("torque", m.locked(m.torque.Update))
	r.Add("estop", m.locked(m.estop.Update))
	r.Add("homing", m.locked(m.seq.Update))
	r.Add("flowmeter", m.locked(m.flow.Update))
	r.Add("feedrate", m.locked(m.feed.Update))
	r.Add("probe-guard", m.locked(m.guard.Update))
}

func (m *machine) locked(fn hal.Func) hal.Func {
	return func(p time.Duration) {
		m.mx.Lock()
		defer m.mx.Unlock()
		fn(p)
	}
}

func (m *machine) link(period time.Duration) {
	for i, a := range m.torque.Axes() {
		m.estop.In.MotorFault[i] = a.Out.Fault
	}
	if m.spindle != nil {
		m.estop.In.SpindleErrorCode = m.spindle.ErrorCode()
		m.estop.In.SpindleModbusOK = m.spindle.OK()
	}

	m.estop.In.UserRequestEnable = m.resetPulse
	m.resetPulse = false

	m.seq.MachineOn = m.estop.Out.MachineOn
}

// pulseReset requests an E-Stop reset on the next cycle.
func (m *machine) pulseReset() {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.resetPulse = true
}

// startHoming requests homing for one axis. Reports false for an unknown
// label.
func (m *machine) startHoming(label byte) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	a := m.seq.Axis(label)
	if a == nil {
		return false
	}
	a.In.StartHoming = true
	return true
}

type axisStatus struct {
	Label       string  `json:"label"`
	State       string  `json:"state"`
	Homed       bool    `json:"homed"`
	Homing      bool    `json:"homing"`
	Moving      bool    `json:"moving"`
	Enable      bool    `json:"enable"`
	TriggerHome bool    `json:"triggerHome"`
	Speed       float64 `json:"speed"`
	Torque      float64 `json:"torque"`
	MotorFault  bool    `json:"motorFault"`
	MotorEnable bool    `json:"motorEnable"`
}

type status struct {
	Time time.Time `json:"time"`

	EStop     bool `json:"estop"`
	EStopped  bool `json:"estopped"`
	Faulted   bool `json:"faulted"`
	EmcEnable bool `json:"emcEnable"`
	MachineOn bool `json:"machineOn"`
	Unhome    bool `json:"unhome"`

	Axes []axisStatus `json:"axes"`

	SpindleOK        bool  `json:"spindleOk"`
	SpindleErrorCode int32 `json:"spindleErrorCode"`

	FlowRate   float64 `json:"flowRate"`
	FeedRate   float64 `json:"feedRate"`
	ProbeAbort bool    `json:"probeAbort"`
}

// snapshot copies the current machine state for publishing.
func (m *machine) snapshot() status {
	m.mx.Lock()
	defer m.mx.Unlock()

	st := status{
		Time:             time.Now(),
		EStop:            m.estop.EStop(),
		EStopped:         m.estop.EStopped(),
		Faulted:          m.estop.Faulted(),
		EmcEnable:        m.estop.Out.EmcEnable,
		MachineOn:        m.estop.Out.MachineOn,
		Unhome:           m.estop.Out.Unhome,
		SpindleOK:        m.estop.In.SpindleModbusOK,
		SpindleErrorCode: m.estop.In.SpindleErrorCode,
		FlowRate:         m.flow.Out.FlowRate,
		FeedRate:         m.feed.Out.FeedRate,
		ProbeAbort:       m.guard.Out.Abort,
	}

	for i, a := range m.seq.Axes() {
		ta := m.torque.Axes()[i]
		st.Axes = append(st.Axes, axisStatus{
			Label:       a.Label(),
			State:       a.State().String(),
			Homed:       a.Out.Homed,
			Homing:      a.Out.Homing,
			Moving:      a.Out.Moving,
			Enable:      a.Out.Enable,
			TriggerHome: a.Out.TriggerHome,
			Speed:       a.Out.Speed,
			Torque:      ta.Out.Torque,
			MotorFault:  ta.Out.Fault,
			MotorEnable: m.estop.Out.MotorEnable[i],
		})
	}
	return st
}
