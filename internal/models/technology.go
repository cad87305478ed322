package models

import "strings"

// TechnologyChoice is an entry of the fixed technology catalogue
type TechnologyChoice struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// TechnologyChoices lists every technology a site can be linked to
var TechnologyChoices = []TechnologyChoice{
	{Code: "5G-MMWAVE", Label: "5G mmWave"},
	{Code: "5G-NR", Label: "5G NR"},
	{Code: "5G-SUB_6", Label: "5G Sub-6 GHz"},
	{Code: "ADSL", Label: "ADSL"},
	{Code: "BLUETOOTH-4", Label: "Bluetooth 4.0 (LE)"},
	{Code: "BLUETOOTH-5", Label: "Bluetooth 5.0"},
	{Code: "CABLE-DOCSIS", Label: "Cable DOCSIS"},
	{Code: "EDGE", Label: "EDGE"},
	{Code: "FEMTOCELL", Label: "Femtocell"},
	{Code: "FTTH-EPON", Label: "FTTH EPON"},
	{Code: "FTTH-GPON", Label: "FTTH GPON"},
	{Code: "GPRS", Label: "GPRS"},
	{Code: "GSM-1800", Label: "GSM 1800"},
	{Code: "GSM-900", Label: "GSM 900"},
	{Code: "HSPA", Label: "HSPA"},
	{Code: "HSPA-PLUS", Label: "HSPA+"},
	{Code: "LORA", Label: "LoRa"},
	{Code: "LORAWAN", Label: "LoRaWAN"},
	{Code: "LTE-1800", Label: "LTE 1800"},
	{Code: "LTE-2600", Label: "LTE 2600"},
	{Code: "LTE-800", Label: "LTE 800"},
	{Code: "LTE-A", Label: "LTE-A"},
	{Code: "LTE-M", Label: "LTE-M"},
	{Code: "MICRO-CELL", Label: "Micro Cell"},
	{Code: "MICROWAVE-PTP", Label: "Microwave Point-to-Point"},
	{Code: "MICROWAVE-PTMP", Label: "Microwave Point-to-Multipoint"},
	{Code: "MPLS", Label: "MPLS"},
	{Code: "NB-IOT", Label: "NB-IoT"},
	{Code: "P25", Label: "P25"},
	{Code: "PICO-CELL", Label: "Pico Cell"},
	{Code: "SAT-VSAT", Label: "Satellite VSAT"},
	{Code: "SIGFOX", Label: "Sigfox"},
	{Code: "TETRA", Label: "TETRA"},
	{Code: "UMTS-2100", Label: "UMTS 2100"},
	{Code: "UMTS-900", Label: "UMTS 900"},
	{Code: "VDSL", Label: "VDSL"},
	{Code: "VPN", Label: "VPN"},
	{Code: "WIFI", Label: "Wi-Fi"},
	{Code: "Z-WAVE", Label: "Z-Wave"},
	{Code: "ZIGBEE", Label: "Zigbee"},
}

var technologyLabels = func() map[string]string {
	m := make(map[string]string, len(TechnologyChoices))
	for _, c := range TechnologyChoices {
		m[c.Code] = c.Label
	}
	return m
}()

// NormalizeTechnologyCode upper-cases and trims a code as typed in a spreadsheet
func NormalizeTechnologyCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsKnownTechnology reports whether code belongs to the catalogue
func IsKnownTechnology(code string) bool {
	_, ok := technologyLabels[NormalizeTechnologyCode(code)]
	return ok
}

// TechnologyLabel returns the display label of a code, or the code itself when unknown
func TechnologyLabel(code string) string {
	if label, ok := technologyLabels[NormalizeTechnologyCode(code)]; ok {
		return label
	}
	return code
}
