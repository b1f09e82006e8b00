package followup

import "fmt"

const (
	msgContactCustomer = "Seguimiento ConectaPro 👋\n" +
		"¿Pudiste *contactar* al profesional?\n" +
		"Responde:\n1) SI\n2) NO"
	msgServiceCustomer = "Seguimiento ConectaPro 👋\n" +
		"¿Se *realizó* el servicio?\n" +
		"Responde:\n1) SI\n2) NO"
	msgRatingRequest = "Último paso 🙌\n" +
		"Evalúa al profesional (solo si el servicio se realizó):\n" +
		"1-5 estrellas (ej: '5 excelente')\n" +
		"0 para omitir"

	msgContactReminderCustomer = "Recordatorio: responde 1=SI 2=NO ¿Pudiste contactar al profesional?"
	msgServiceReminderCustomer = "Recordatorio: responde 1=SI 2=NO ¿Se realizó el servicio?"
	msgRatingReminder          = "Recordatorio: evalúa al profesional con un número de 0 a 5 (0 para omitir)."
)

func contactForProvider(leadID int64) string {
	return fmt.Sprintf("Seguimiento ConectaPro 👋\nLeadID: %d\n¿Pudiste *contactar* al cliente?\nResponde:\n1) SI\n2) NO", leadID)
}

func serviceForProvider(leadID int64) string {
	return fmt.Sprintf("Seguimiento ConectaPro 👋\nLeadID: %d\n¿Se *realizó* el servicio?\nResponde:\n1) SI\n2) NO", leadID)
}

func contactReminderForProvider(leadID int64) string {
	return fmt.Sprintf("Recordatorio LeadID %d: responde 1=SI 2=NO ¿Pudiste contactar al cliente?", leadID)
}

func serviceReminderForProvider(leadID int64) string {
	return fmt.Sprintf("Recordatorio LeadID %d: responde 1=SI 2=NO ¿Se realizó el servicio?", leadID)
}
