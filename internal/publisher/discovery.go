package publisher

import (
	"fmt"
	"strings"
)

// carrierIcons maps known carrier labels to Home Assistant icons.
var carrierIcons = map[string]string{
	"fedex":  "mdi:truck-fast",
	"ups":    "mdi:package-variant-closed",
	"usps":   "mdi:mailbox",
	"amazon": "mdi:amazon",
	"dhl":    "mdi:truck",
}

func carrierIcon(label string) string {
	if icon, ok := carrierIcons[strings.ToLower(label)]; ok {
		return icon
	}
	return "mdi:truck-delivery"
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

type binarySensorConfig struct {
	Name              string          `json:"name"`
	StateTopic        string          `json:"state_topic"`
	PayloadOn         string          `json:"payload_on"`
	PayloadOff        string          `json:"payload_off"`
	UniqueID          string          `json:"unique_id"`
	DeviceClass       string          `json:"device_class"`
	Icon              string          `json:"icon"`
	AvailabilityTopic string          `json:"availability_topic"`
	Device            discoveryDevice `json:"device"`
}

type sensorConfig struct {
	Name                string          `json:"name"`
	StateTopic          string          `json:"state_topic"`
	ValueTemplate       string          `json:"value_template,omitempty"`
	JSONAttributesTopic string          `json:"json_attributes_topic,omitempty"`
	UniqueID            string          `json:"unique_id"`
	UnitOfMeasurement   string          `json:"unit_of_measurement,omitempty"`
	Icon                string          `json:"icon"`
	AvailabilityTopic   string          `json:"availability_topic"`
	Device              discoveryDevice `json:"device"`
}

// publishDiscovery announces every entity to Home Assistant. All
// configs are retained at qos 1 so the hub picks them up whenever it
// starts.
func (p *Publisher) publishDiscovery() {
	device := discoveryDevice{
		Identifiers:  []string{"mailcam_detector"},
		Name:         "Mailcam Detector",
		Manufacturer: "Custom",
		Model:        "ONNX Detector",
		SWVersion:    "2.0",
	}
	availability := p.topic("availability")

	for _, label := range p.labels {
		cfg := binarySensorConfig{
			Name:              fmt.Sprintf("Mailcam %s Today", strings.ToUpper(label)),
			StateTopic:        p.topic("carriers", label),
			PayloadOn:         "yes",
			PayloadOff:        "no",
			UniqueID:          "mailcam_carrier_" + label,
			DeviceClass:       "occupancy",
			Icon:              carrierIcon(label),
			AvailabilityTopic: availability,
			Device:            device,
		}
		topic := fmt.Sprintf("%s/binary_sensor/mailcam/%s/config", p.cfg.DiscoveryPrefix, label)
		p.enqueueJSON(topic, cfg, 1, true)
	}

	p.enqueueJSON(p.cfg.DiscoveryPrefix+"/sensor/mailcam/daily_summary/config", sensorConfig{
		Name:                "Mailcam Daily Summary",
		StateTopic:          p.topic("daily_summary"),
		ValueTemplate:       "{{ value_json.date | default('Unknown') }}",
		JSONAttributesTopic: p.topic("daily_summary"),
		UniqueID:            "mailcam_daily_summary",
		Icon:                "mdi:clipboard-text-clock",
		AvailabilityTopic:   availability,
		Device:              device,
	}, 1, true)

	p.enqueueJSON(p.cfg.DiscoveryPrefix+"/sensor/mailcam/current_status/config", sensorConfig{
		Name:              "Mailcam Current Status",
		StateTopic:        p.topic("state"),
		UniqueID:          "mailcam_current_status",
		Icon:              "mdi:eye",
		AvailabilityTopic: availability,
		Device:            device,
	}, 1, true)

	p.enqueueJSON(p.cfg.DiscoveryPrefix+"/sensor/mailcam/details/config", sensorConfig{
		Name:                "Mailcam Detection Details",
		StateTopic:          p.topic("details"),
		ValueTemplate:       "{{ value_json.hit_count | default(0) }}",
		JSONAttributesTopic: p.topic("details"),
		UniqueID:            "mailcam_detection_details",
		UnitOfMeasurement:   "hits",
		Icon:                "mdi:information",
		AvailabilityTopic:   availability,
		Device:              device,
	}, 1, true)
}
