package bridge

import "fmt"

// Typed views over the opaque per-device configuration map. The map schema
// differs per device class; emitters validate it once at session start and
// work with these structs on the hot path.

// NativeCfg configures the native UDP protocols.
type NativeCfg struct {
	IP      string
	LightNr int
}

// ESPHomeCfg configures an ESPHome device.
type ESPHomeCfg struct {
	IP string
}

// WLEDCfg configures one light on a WLED controller. Several lights may
// share one controller with disjoint segment ranges.
type WLEDCfg struct {
	IP            string
	UDPPort       int
	SegmentStart  int
	SegmentStop   int
	PointsCapable int
}

// LedCount returns the number of LEDs in the segment.
func (c WLEDCfg) LedCount() int { return c.SegmentStop - c.SegmentStart }

// YeelightCfg configures a yeelight bulb.
type YeelightCfg struct {
	IP string
}

// LifxCfg configures a LIFX device on the LAN.
type LifxCfg struct {
	ID            string // serial/mac, preferred device key
	IP            string
	PointsCapable int
	DeviceClass   string // "multizone" | "matrix"; zoned devices with any other value get multizone frames
}

// Key returns the accumulator key for the device.
func (c LifxCfg) Key() string {
	if c.ID != "" {
		return c.ID
	}
	return c.IP
}

// MQTTCfg configures an MQTT light.
type MQTTCfg struct {
	CommandTopic string
}

// HueCfg configures a light that lives on an upstream Hue bridge.
type HueCfg struct {
	IP      string
	HueUser string
	ID      string // light id on the upstream bridge
}

// HassCfg configures a Home Assistant light entity.
type HassCfg struct {
	EntityID string
}

// NativeCfgOf parses the native protocol config of a light.
func NativeCfgOf(l *Light) (NativeCfg, error) {
	ip := cfgString(l.Cfg, "ip")
	if ip == "" {
		return NativeCfg{}, fmt.Errorf("light %d: native config missing ip", l.IDV1)
	}
	nr := cfgInt(l.Cfg, "light_nr", 1)
	if nr < 1 {
		nr = 1
	}
	return NativeCfg{IP: ip, LightNr: nr}, nil
}

// ESPHomeCfgOf parses the esphome config of a light.
func ESPHomeCfgOf(l *Light) (ESPHomeCfg, error) {
	ip := cfgString(l.Cfg, "ip")
	if ip == "" {
		return ESPHomeCfg{}, fmt.Errorf("light %d: esphome config missing ip", l.IDV1)
	}
	return ESPHomeCfg{IP: ip}, nil
}

// WLEDCfgOf parses the wled config of a light.
func WLEDCfgOf(l *Light) (WLEDCfg, error) {
	ip := cfgString(l.Cfg, "ip")
	if ip == "" {
		return WLEDCfg{}, fmt.Errorf("light %d: wled config missing ip", l.IDV1)
	}
	start := cfgInt(l.Cfg, "segment_start", 0)
	stop := cfgInt(l.Cfg, "segment_stop", cfgInt(l.Cfg, "ledCount", 100))
	if stop <= start {
		return WLEDCfg{}, fmt.Errorf("light %d: wled segment [%d,%d) is empty", l.IDV1, start, stop)
	}
	return WLEDCfg{
		IP:            ip,
		UDPPort:       cfgInt(l.Cfg, "udp_port", 21324),
		SegmentStart:  start,
		SegmentStop:   stop,
		PointsCapable: cfgInt(l.Cfg, "points_capable", 0),
	}, nil
}

// YeelightCfgOf parses the yeelight config of a light.
func YeelightCfgOf(l *Light) (YeelightCfg, error) {
	ip := cfgString(l.Cfg, "ip")
	if ip == "" {
		return YeelightCfg{}, fmt.Errorf("light %d: yeelight config missing ip", l.IDV1)
	}
	return YeelightCfg{IP: ip}, nil
}

// LifxCfgOf parses the lifx config of a light.
func LifxCfgOf(l *Light) (LifxCfg, error) {
	cfg := LifxCfg{
		ID:            cfgString(l.Cfg, "id"),
		IP:            cfgString(l.Cfg, "ip"),
		PointsCapable: cfgInt(l.Cfg, "points_capable", 0),
		DeviceClass:   cfgString(l.Cfg, "device_class"),
	}
	if cfg.ID == "" && cfg.IP == "" {
		return LifxCfg{}, fmt.Errorf("light %d: lifx config missing id and ip", l.IDV1)
	}
	return cfg, nil
}

// MQTTCfgOf parses the mqtt config of a light.
func MQTTCfgOf(l *Light) (MQTTCfg, error) {
	topic := cfgString(l.Cfg, "command_topic")
	if topic == "" {
		return MQTTCfg{}, fmt.Errorf("light %d: mqtt config missing command_topic", l.IDV1)
	}
	return MQTTCfg{CommandTopic: topic}, nil
}

// HueCfgOf parses the upstream-hue config of a light.
func HueCfgOf(l *Light) (HueCfg, error) {
	cfg := HueCfg{
		IP:      cfgString(l.Cfg, "ip"),
		HueUser: cfgString(l.Cfg, "hueUser"),
		ID:      cfgString(l.Cfg, "id"),
	}
	if cfg.IP == "" || cfg.ID == "" {
		return HueCfg{}, fmt.Errorf("light %d: hue config missing ip or id", l.IDV1)
	}
	return cfg, nil
}

// HassCfgOf parses the Home Assistant config of a light.
func HassCfgOf(l *Light) (HassCfg, error) {
	entity := cfgString(l.Cfg, "entity_id")
	if entity == "" {
		return HassCfg{}, fmt.Errorf("light %d: homeassistant config missing entity_id", l.IDV1)
	}
	return HassCfg{EntityID: entity}, nil
}

func cfgString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func cfgInt(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
