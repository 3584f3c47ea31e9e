package obd

import (
	"fmt"
	"strings"

	"obdscan/internal/models"
)

var dtcLetters = [4]byte{'P', 'C', 'B', 'U'}

// DecodeDTC decodes a two-byte trouble code per SAE J2012: the top two
// bits select the system letter, the remaining nibbles are the digits.
// A zero pair is padding and yields "".
func DecodeDTC(a, b byte) string {
	if a == 0 && b == 0 {
		return ""
	}
	letter := dtcLetters[(a&0xC0)>>6]
	return fmt.Sprintf("%c%X%X%X%X", letter, (a&0x30)>>4, a&0x0F, (b&0xF0)>>4, b&0x0F)
}

type dtcInfo struct {
	desc     string
	severity models.Severity
}

var knownDTCs = map[string]dtcInfo{
	"P0300": {"Fallo de encendido aleatorio/múltiple", models.SeverityCritical},
	"P0301": {"Fallo de encendido en cilindro 1", models.SeverityCritical},
	"P0302": {"Fallo de encendido en cilindro 2", models.SeverityCritical},
	"P0303": {"Fallo de encendido en cilindro 3", models.SeverityCritical},
	"P0304": {"Fallo de encendido en cilindro 4", models.SeverityCritical},
	"P0420": {"Catalizador sistema bajo eficiencia", models.SeverityWarning},
	"P0171": {"Sistema demasiado pobre (Banco 1)", models.SeverityWarning},
	"P0172": {"Sistema demasiado rico (Banco 1)", models.SeverityWarning},
	"P0174": {"Sistema demasiado pobre (Banco 2)", models.SeverityWarning},
	"P0175": {"Sistema demasiado rico (Banco 2)", models.SeverityWarning},
	"P0101": {"Circuito MAF rango/rendimiento", models.SeverityWarning},
	"P0128": {"Termostato: temperatura de refrigerante baja", models.SeverityWarning},
	"P0442": {"Fuga pequeña en sistema EVAP", models.SeverityInfo},
	"P0455": {"Fuga grande en sistema EVAP", models.SeverityWarning},
	"P0500": {"Fallo del sensor de velocidad", models.SeverityWarning},
	"P0505": {"Fallo del sistema de control de ralentí", models.SeverityWarning},
	"P0507": {"RPM de ralentí más altas de lo esperado", models.SeverityInfo},
	"U0100": {"Comunicación perdida con ECM/PCM", models.SeverityCritical},
	"U0121": {"Comunicación perdida con módulo ABS", models.SeverityWarning},
}

// NewDTC builds an entry for code, filling the description and severity
// from the known table. Unknown codes are info with a generic description.
func NewDTC(code string) models.DTCEntry {
	code = strings.ToUpper(strings.TrimSpace(code))
	if info, ok := knownDTCs[code]; ok {
		return models.DTCEntry{Code: code, Description: info.desc, Severity: info.severity}
	}
	return models.DTCEntry{Code: code, Description: "Código desconocido", Severity: models.SeverityInfo}
}
