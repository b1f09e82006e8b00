package flow

import (
	"fmt"
	"strings"

	"conectapro/internal/leads/domain"
)

const (
	msgIntro = "Hola 👋 Soy ConectaPro.\n" +
		"Te ayudo a conectar con profesionales según tu necesidad y comuna.\n\n" +
		"Escríbeme qué necesitas, por ejemplo:\n" +
		"• Necesito un electricista\n" +
		"• Busco kinesiólogo\n" +
		"• Abogado por herencia"

	msgAskComuna             = "Perfecto. ¿En qué comuna necesitas al profesional?"
	msgAskComunaAfterChoice  = "Gracias 👍 ¿En qué comuna necesitas al profesional?"
	msgComunaTooShort        = "Dime tu comuna (ej: Talcahuano, Concepción, San Pedro)."
	msgPickOneOrTwo          = "Por favor responde 1 o 2 🙂"
	msgInvalidOneOrTwo       = "Opción inválida. Responde 1 o 2 🙂"
	msgClarificationUnmapped = "No pude resolver tu opción. Describe tu necesidad nuevamente."

	msgNoIntent = "No logré identificar tu necesidad 😕\n" +
		"Descríbela con un poco más de detalle.\n" +
		"Ejemplo: 'Mi notebook no prende' / 'Se me gotea el techo' / 'Busco abogado por herencia'."
	msgStillNoIntent = "Aún no logro identificar el tipo de ayuda.\n" +
		"Descríbelo con más detalle (qué pasó / qué necesitas que hagan)."

	msgNeedServiceAndComuna = "Necesito el servicio y la comuna para buscar profesionales. ¿Me repites tu necesidad?"
	msgNoProviders          = "No encontré profesionales disponibles para esa necesidad en tu comuna.\n" +
		"Describe el problema con más detalle o prueba otra comuna."

	msgNoOffers          = "No tengo opciones disponibles. Describe nuevamente tu necesidad."
	msgChoiceNotNumber   = "Responde con el número del profesional que prefieres."
	msgChoiceOutOfRange  = "Opción inválida. Responde con el número indicado."
	msgConsent           = "¿Autorizas que compartamos tu número con este profesional para que te contacte?\nResponde:\n1) SI\n2) NO"
	msgAnswerYesNo       = "Responde 1=SI o 2=NO para continuar."
	msgProviderMissing   = "No pude encontrar al profesional seleccionado. Elige otra opción."
	msgConnectedStatus   = "Ya compartimos tu contacto con el profesional 🙂\nEn breve te contactará. Te escribiremos para saber cómo te fue."
	msgPendingFollowup   = "Tienes una solicitud en seguimiento.\nResponde la última pregunta que te enviamos para continuar."
	msgAnswerRecorded    = "Gracias, respuesta registrada."
	msgRatingPrompt      = "Responde con un número 0 a 5 (ej: 5 excelente)."
	msgClosedWithoutRate = "Gracias, tu caso fue cerrado."
	msgRated             = "¡Gracias por tu evaluación! Caso cerrado."
	msgNoPendingProvider = "No tengo seguimientos pendientes para ti."

	maxAlternativesInText = 5
)

func noProvidersIn(comuna string, alternatives []string) string {
	if len(alternatives) == 0 {
		return msgNoProviders
	}
	return fmt.Sprintf("No encontré profesionales disponibles para esa necesidad en %s.\n"+
		"Tenemos disponibles en: %s.\n"+
		"Prueba una de estas comunas o describe tu necesidad de otra forma.",
		comuna, joinFirst(alternatives, maxAlternativesInText))
}

func noProvidersAgain(comuna string, alternatives []string) string {
	if len(alternatives) == 0 {
		return fmt.Sprintf("No encontré profesionales para esa necesidad en %s tampoco.\n"+
			"Prueba otra comuna o describe tu necesidad de otra forma.", comuna)
	}
	return fmt.Sprintf("No encontré profesionales para esa necesidad en %s tampoco.\n"+
		"Tenemos disponibles en: %s.\n"+
		"Prueba una de estas comunas o describe tu necesidad de otra forma.",
		comuna, joinFirst(alternatives, maxAlternativesInText))
}

func connectedForCustomer(p domain.Provider) string {
	return "¡Listo! Compartimos tu contacto con el profesional.\n" +
		p.DisplayName() + "\n" +
		"En breve el profesional te contactará."
}

// newClientParams are the body parameters of the provider notification template, in order.
func newClientParams(lead domain.Lead) []string {
	return []string{
		orDefault(lead.CustomerName, "Cliente"),
		orDefault(lead.ProblemType, "No especificado"),
		orDefault(lead.Comuna, "-"),
		lead.CustomerID,
	}
}

func newClientForProvider(lead domain.Lead) string {
	p := newClientParams(lead)
	return "Nuevo cliente ConectaPro 👋\n" +
		"Nombre: " + p[0] + "\n" +
		"Problema: " + p[1] + "\n" +
		"Comuna: " + p[2] + "\n" +
		"Contacto: " + p[3]
}

func joinFirst(items []string, n int) string {
	if len(items) > n {
		items = items[:n]
	}
	return strings.Join(items, ", ")
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
