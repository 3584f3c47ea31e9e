package advisor

import "obdscan/internal/models"

var codeRules = map[string]models.Recommendation{
	"P0301": {
		Title:         "Revisar Sistema de Encendido - Cilindro 1",
		Description:   "El fallo de encendido puede deberse a bujías desgastadas, bobinas defectuosas o problemas en los inyectores.",
		Priority:      models.PriorityHigh,
		Components:    []string{"Bujías", "Bobinas de encendido", "Inyectores", "Cables de alta tensión"},
		EstimatedCost: "$50 - $300",
	},
	"P0420": {
		Title:         "Inspección del Catalizador",
		Description:   "La eficiencia del catalizador está por debajo del umbral. Puede requerir limpieza o reemplazo.",
		Priority:      models.PriorityMedium,
		Components:    []string{"Catalizador", "Sensores de oxígeno", "Sistema de escape"},
		EstimatedCost: "$200 - $1,500",
	},
	"P0171": {
		Title:         "Verificar Sistema de Combustible",
		Description:   "El sistema está funcionando muy pobre. Revisar filtro de aire, sensores MAF y posibles fugas de vacío.",
		Priority:      models.PriorityMedium,
		Components:    []string{"Filtro de aire", "Sensor MAF", "Sistema de vacío", "Inyectores"},
		EstimatedCost: "$100 - $400",
	},
}

var overheating = models.Recommendation{
	Title:         "Temperatura del Motor Elevada",
	Description:   "El motor está operando a temperatura alta. Verificar nivel de refrigerante y funcionamiento del termostato.",
	Priority:      models.PriorityHigh,
	Components:    []string{"Sistema de refrigeración", "Termostato", "Bomba de agua", "Radiador"},
	EstimatedCost: "$80 - $500",
}

var roughIdle = models.Recommendation{
	Title:         "RPM en Ralentí Irregulares",
	Description:   "Las RPM en ralentí están ligeramente elevadas. Puede indicar fugas de vacío o problemas en el cuerpo de aceleración.",
	Priority:      models.PriorityLow,
	Components:    []string{"Cuerpo de aceleración", "Válvula IAC", "Sistema de vacío"},
	EstimatedCost: "$60 - $250",
}

var goodCondition = models.Recommendation{
	Title:         "Vehículo en Buen Estado",
	Description:   "No se detectaron problemas críticos. Se recomienda mantenimiento preventivo regular.",
	Priority:      models.PriorityLow,
	Components:    []string{"Mantenimiento general"},
	EstimatedCost: "$50 - $150",
}
