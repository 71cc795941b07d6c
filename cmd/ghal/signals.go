package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errUnknownSignal = errors.New("unknown signal")

// setSignal writes one named input signal. Bench inputs use the component
// names with an axis suffix where applicable, e.g. "duty-x" or
// "following-error-b".
func (m *machine) setSignal(name, value string) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	parseBool := func(dst *bool) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("signal %s: %w", name, err)
		}
		*dst = v
		return nil
	}
	parseFloat := func(dst *float64) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("signal %s: %w", name, err)
		}
		*dst = v
		return nil
	}

	switch name {
	case "button":
		return parseBool(&m.estop.In.Button)
	case "user-enable":
		return parseBool(&m.estop.In.UserEnable)
	case "ignore-com-errors":
		return parseBool(&m.estop.In.IgnoreComErrors)
	case "spindle-modbus-ok":
		return parseBool(&m.estop.In.SpindleModbusOK)
	case "spindle-error-code":
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("signal %s: %w", name, err)
		}
		m.estop.In.SpindleErrorCode = int32(v)
		return nil
	case "flow-signal":
		return parseBool(&m.flow.In.Signal)
	case "probe-on":
		return parseBool(&m.guard.In.ProbeOn)
	case "probe-error":
		return parseBool(&m.guard.In.ProbeError)
	case "motion-type":
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("signal %s: %w", name, err)
		}
		m.guard.In.MotionType = int32(v)
		return nil
	case "x":
		return parseFloat(&m.feed.In.X)
	case "y":
		return parseFloat(&m.feed.In.Y)
	case "z":
		return parseFloat(&m.feed.In.Z)
	case "tool-z":
		return parseFloat(&m.feed.In.ToolZ)
	case "a":
		return parseFloat(&m.feed.In.A)
	case "b":
		return parseFloat(&m.feed.In.B)
	}

	// per-axis signals carry a single-character axis suffix
	i := strings.LastIndexByte(name, '-')
	if i < 0 || i != len(name)-2 {
		return fmt.Errorf("%w: %s", errUnknownSignal, name)
	}
	label := name[len(name)-1]

	switch name[:i] {
	case "duty":
		a := m.torque.Axis(label)
		if a == nil {
			break
		}
		return parseFloat(&a.In.DutyCycle)
	case "frequency":
		a := m.torque.Axis(label)
		if a == nil {
			break
		}
		return parseFloat(&a.In.Frequency)
	case "ratio":
		a := m.torque.Axis(label)
		if a == nil {
			break
		}
		return parseFloat(&a.In.Ratio)
	case "feedback":
		a := m.seq.Axis(label)
		if a == nil {
			break
		}
		return parseFloat(&a.In.Feedback)
	case "home-switch":
		a := m.seq.Axis(label)
		if a == nil {
			break
		}
		return parseBool(&a.In.HomeSwitch)
	case "following-error":
		for j := 0; j < len(m.estop.Axes()); j++ {
			if m.estop.Axes()[j] == label {
				return parseBool(&m.estop.In.FollowingError[j])
			}
		}
	}
	return fmt.Errorf("%w: %s", errUnknownSignal, name)
}
