// Package flow message builders. The literal copy lives here as data so the
// engine rules stay readable; tests assert on flow position, not wording.
package flow

import (
	"fmt"
	"strings"

	"github.com/gymbrocolombia/gymbot/internal/catalog"
	"github.com/gymbrocolombia/gymbot/internal/models"
)

const (
	registrationURL = "https://aplicacion.gymbrocolombia.com/registro/add"
	pseCheckoutURL  = "https://checkout.wompi.co/l/VPOS_tTb23T"
	socialLinksURL  = "https://linktr.ee/GYMBROCOLOMBIA"
)

const (
	msgTestAck = "🤖 ¡Bot funcionando correctamente! 💪"

	msgCleanupAck = "🧹 Limpieza de usuarios inactivos ejecutada"

	msgPrivacyNotice = "👋 ¡Hola! Soy el asistente virtual de *GYMBRO* 💪\n\n" +
		"Para comenzar, necesito que aceptes el tratamiento de tus datos personales según nuestra política de privacidad.\n\n" +
		"✅ Escribe *\"acepto\"* para continuar."

	msgPrivacyReminder = "👋 Para comenzar necesito que aceptes el tratamiento de tus datos personales.\n\n" +
		"✅ Escribe *\"acepto\"* para continuar."

	msgLocationPrompt = "🏋️‍♂️ ¡Hola, hablas con GABRIELA tu asistente virtual bienvenido a GYMBRO! 🏋️‍♀️\n\n" +
		"¿En cuál de nuestras sedes te encuentras interesad@?\n\n" +
		"📍 Responde con:\n" +
		"1️⃣ - Sede 20 de Julio \n" +
		"2️⃣ - Sede Venecia\n\n" +
		"No olvides seguirnos en nuestras redes sociales " + socialLinksURL

	msgLocationReprompt = "📍 Por favor, selecciona una de nuestras sedes para continuar:\n\n" +
		"1️⃣ - Para sede 20 de Julio \n" +
		"2️⃣ - Para sede Venecia"

	msgFarewell = "👋 Has finalizado el chat con GYMBRO.\n\n" +
		"Si deseas volver a empezar, solo escribe cualquier mensaje. ¡Estaremos aquí para ayudarte! 💪"

	msgExperienceAsk = "🎉 ¡Genial! ¿Podrías contarnos cómo ha sido tu experiencia con GYMBRO hasta ahora? 💬"

	msgNoContractAck = "✅ Gracias por tu respuesta. Si necesitas ayuda para iniciar tu plan, estamos disponibles."

	msgFeedbackThanks = "🙏 ¡Gracias por elegirnos! Tus comentarios nos ayudan a mejorar cada día. 💬💪\n\n" +
		"Estamos siempre para ayudarte.\n\n👋 ¡Hasta pronto!"

	msgClassSchedule = "📅 *Horarios de Clases Grupales*\n\n" +
		"🕐 Lunes a Viernes:\n🟢 *7:00 a.m.*\n🟢 *7:00 p.m.*\n\n" +
		"💪 Te esperamos para entrenar juntos y mantener la energía al 100%.\n\n" +
		"Escribe *\"menu\"* para regresar al menú principal."

	msgSchedules = "📍 *Horarios y Sedes GYMBRO* 🕒\n\n" +
		"*Sede 20 de Julio*\n" +
		"📍 Dirección: Cra. 5a #32 21 Sur\n" +
		"🕐 Horario: Lunes a viernes 5am - 10pm / Sábados 7am - 5pm / Domingos 8am - 4pm\n\n" +
		"*Sede Venecia*\n" +
		"📍 Dirección: Tv. 44 #51b 30 Sur\n" +
		"🕐 Horario: Lunes a viernes 5am - 10pm / Sábados 7am - 5pm / Domingos 8am - 4pm\n\n" +
		"Escribe \"menu\" para volver al menú principal."

	msgRecruiting = "🙌 ¡Qué alegría que quieras hacer parte de nuestra familia GYMBRO!\n\n" +
		"📄 Si estás interesado en trabajar con nosotros, envíanos tu hoja de vida al siguiente número de WhatsApp: +57 318 6196126.\n\n" +
		"Te contactaremos si hay una vacante que se ajuste a tu perfil.\n\n" +
		"Escribe *\"menu\"* para regresar al menú principal."

	msgNoCommitment = "💪 ¡En GYMBRO no tenemos ninguna atadura! Puedes cancelar tu membresía cuando lo desees. Queremos que te quedes porque amas entrenar, no por obligación.\n\n" +
		"Escribe \"menu\" para volver al menú principal o consulta alguna otra opción."

	msgAdvisorHandoff = "💬 Te estoy redirigiendo a un asesor. Por favor, espera en línea. Un asesor humano continuará la conversación contigo."

	msgNoEnrollmentFee = "💪 ¡En GYMBRO no cobramos inscripción! Queremos que hagas parte de nuestra familia fitness. Puedes adquirir tu membresía cuando lo desees o acercarte a conocer nuestras instalaciones sin compromiso. ¡Te esperamos!\n\n" +
		"Realiza tu inscripción aquí: Registro GYMBRO 👉 " + registrationURL + "\n\n" +
		"Escribe \"menu\" para volver al menú principal."

	msgFallback = "🤖 No entendí tu mensaje. Por favor selecciona una opción válida o escribe \"menu\" para volver al inicio.\n\n" +
		"Comandos disponibles:\n" +
		"• \"menu\" - Menú principal\n" +
		"• \"asesor\" - Hablar con humano\n" +
		"• \"salir\" - Finalizar chat\n"

	msgUnknownPlanToContract = "❓ No pudimos identificar el plan que deseas contratar.\n\nEscribe \"2\" para volver a ver nuestras membresías."

	msgInvalidPaymentOption = "❌ Opción de pago inválida. Por favor, selecciona una opción válida."

	msgQRLoadFailed = "❌ No se pudo cargar el QR. Por favor, intenta de nuevo."

	msgTransferCaption = "Escanea este QR para realizar la transferencia o si prefieres para transferencias desde Bancolombia o Nequi puedes realizar el envio a la cuenta de ahorros N.15400004738 bajo el nombre de grupo c y v sas."

	msgTransferReceipt = "Por favor, envíanos el comprobante de pago para confirmar tu membresía."

	msgRegistrationFollowUp = "Después de realizar tu pago, si eres cliente nuevo, realiza tu inscripción aquí: Registro GYMBRO 👉 " + registrationURL

	msgAddiInstructions = "👉 Para pagar con Addi: requiero tu cédula y te llegará un link a tu celular"

	msgReceiptAndRegistration = "Recuerda enviarnos el comprobante después de realizar tu pago. Si eres cliente nuevo, realiza tu inscripción aquí: Registro GYMBRO 👉 " + registrationURL

	msgPSEInstructions = "👉 Sigue este enlace para pagar con PSE: " + pseCheckoutURL
)

// Messages sent outside the rule table, by the dispatcher and the lifecycle
// sweeps.
const (
	// ProcessingErrorMessage is the apology sent when handling an inbound
	// message fails after the fact.
	ProcessingErrorMessage = "⚠️ Ocurrió un error al procesar tu mensaje. Intenta de nuevo."

	// InactivityClosedMessage notifies a user their session was closed by
	// the inactivity sweep.
	InactivityClosedMessage = "⏳ Finalizamos el chat por inactividad. ¡Gracias por tu interés en GYMBRO! 💪\n\n" +
		"Escribe cualquier mensaje para iniciar nuevamente."

	// ReengagementMessage is the follow-up for non-contracted contacts idle
	// past the re-engagement threshold.
	ReengagementMessage = "👋 ¡Hola! Te escribimos desde *GYMBRO* 💪\n\n" +
		"¿Aún estás interesad@ en nuestros planes?\n\n" +
		"Responde *Sí* si ya contrataste, o *No* si deseas más información."
)

// RenewalMessage is the follow-up for contracted contacts whose plan expires
// within the renewal window.
func RenewalMessage(daysLeft int) string {
	return fmt.Sprintf("📅 Hola, tu membresía está próxima a vencer.\n\n"+
		"Te quedan %d días.\n\n"+
		"Para renovar escribe *hola* 💪", daysLeft)
}

func statsMessage(active int) string {
	return fmt.Sprintf("📊 Usuarios activos: %d", active)
}

// mainMenu renders the per-site main menu, optionally with the first-contact
// site blurb on top.
func mainMenu(loc models.Location, withIntro bool) string {
	var b strings.Builder
	if withIntro {
		switch loc {
		case models.LocationJulio:
			b.WriteString("📍 *SEDE 20 DE JULIO* 📍\n\n" +
				"Nuestra sede en 20 de Julio está equipada con lo último en tecnología y personal capacitado.\n\n")
		case models.LocationVenecia:
			b.WriteString("📍 *SEDE VENECIA* 📍\n\n" +
				"Nuestra sede en Venecia está diseñada para que puedas entrenar cómodo y seguro.\n\n")
		}
	}
	fmt.Fprintf(&b, "🏋️‍♂️ *MENÚ PRINCIPAL - SEDE %s* 🏋️‍♀️\n\n", strings.ToUpper(string(loc)))
	b.WriteString("Escribe el número de tu opción:\n\n" +
		"1️⃣ Información sobre nuestro gimnasio\n" +
		"2️⃣ Membresías y tarifas\n" +
		"3️⃣ Sedes y horarios\n" +
		"4️⃣ Horarios clases grupales\n" +
		"5️⃣ Trabaja con nosotros\n" +
		"0️⃣ Volver al inicio\n")
	if withIntro {
		b.WriteString("Escribe en cualquier momento \"salir\" para finalizar el chat")
	}
	return b.String()
}

func infoMessage(loc models.Location) string {
	var extra, layout string
	switch loc {
	case models.LocationJulio:
		extra = "❄️ Ambiente climatizado\n🏃‍♂️ Área de cardio ampliada\n"
		layout = "🏢 Nuestra sede cuenta con instalaciones de 3 niveles donde encontraras:\n\n"
	case models.LocationVenecia:
		extra = "🏍️ Parqueadero para motos y bicicletas gratis\n📱 Aplicación de rutina\n"
		layout = "🏢 Nuestra sede cuenta con instalaciones de 5 niveles donde encontraras:\n\n"
	}
	return fmt.Sprintf("🏋️‍♂️ *INFORMACIÓN SOBRE GYMBRO - SEDE %s* 🏋️‍♀️\n\n", strings.ToUpper(string(loc))) +
		"✨ *¿Por qué elegir GYMBRO?*\n\n" +
		layout +
		"👨‍🏫 Entrenadores profesionales en planta: Siempre listos para apoyarte.\n" +
		"🤸‍♀️ Clases grupales incluidas\n" +
		"💪 Máquinas importadas de última tecnología para maximizar tus resultados.\n" +
		"🏃‍♂️ Área de cardio y pesas\n" +
		"🚿 Vestieres amplios y seguros\n" +
		"🔐 Locker gratis para que entrenes sin preocupaciones.\n" +
		"🕒 Horarios flexibles\n" +
		extra +
		"📱 Rutina de iniciación personalizada que puedes solicitar cada mes desde nuestra app.\n\n" +
		"Escribe \"menu\" para volver al menú principal."
}

func planListMessage(loc models.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💪 *NUESTRAS MEMBRESÍAS - SEDE %s* 💪\n\n", strings.ToUpper(string(loc)))
	b.WriteString("Sin costo de inscripción y valoración inicial gratis\n" +
		"Selecciona escribiendo el plan:\n\n")
	for _, p := range catalog.ForLocation(loc) {
		if p.Monthly {
			fmt.Fprintf(&b, "🔹 *%s* - %d,000/mes\n", p.Title, p.Price)
		} else {
			fmt.Fprintf(&b, "🔹 *%s* - %d,000\n", p.Title, p.Price)
		}
		fmt.Fprintf(&b, "📝 Escribe \"%s\" para más info\n\n", p.ID)
	}
	b.WriteString("Escribe \"menu\" para volver al menú principal.")
	return b.String()
}

func planDetailMessage(loc models.Location, p catalog.Plan) string {
	price := fmt.Sprintf("%d,000", p.Price)
	if p.Monthly {
		price += "/mes"
	}
	return fmt.Sprintf("💪 *%s - SEDE %s - %s* 💪\n\n", strings.ToUpper(p.Title), strings.ToUpper(string(loc)), price) +
		strings.Join(p.Benefits, "\n") + "\n\n" +
		"Escribe \"contratar\" para proceder\n" +
		"Escribe \"menu\" para volver al menú principal"
}

// planNotAvailableMessage tells the user a plan belongs to the other site.
func planNotAvailableMessage(current models.Location) string {
	switch current {
	case models.LocationJulio:
		return "❓ Este plan no está disponible en la sede 20 de Julio.\n\nEscribe \"2\" para ver las membresías disponibles."
	default:
		return "❓ Esta membresía no está disponible en la sede Venecia.\n\nEscribe \"2\" para ver los planes disponibles en esta sede."
	}
}

func paymentMethodMenu(plan string) string {
	return fmt.Sprintf("✅ ¡Perfecto! Para contratar el plan *%s*, selecciona tu método de pago:\n\n", plan) +
		"• Bancolombia/Nequi/Daviplata (Transferencia)\n" +
		"• Addi\n" +
		"• Tarjeta de Crédito/Débito\n" +
		"• Efectivo (En la sede)\n" +
		"• PSE\n" +
		"• Volver al menú principal\n\n" +
		"Puedes escribir el *nombre* del método de pago."
}

func inPersonPaymentMessage(method models.PaymentMethod, loc models.Location) string {
	if method == models.PaymentCard {
		return fmt.Sprintf("💳 Para pagar con tarjeta, por favor dirígete a la recepción de la sede *%s*.", loc)
	}
	return fmt.Sprintf("💰 Para pagar en *Efectivo*, por favor dirígete a la recepción de la sede *%s*.", loc)
}
