package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/prdanielmota/parking-whatsapp-bot/internal/models"
)

// User-facing texts live here, in Brazilian Portuguese. Logs and code
// stay in English. WhatsApp renders *asterisks* as bold.

func msgWelcome() string {
	return `👋 *Bem-vindo ao Estacionamento!*

Para entrar, me envie seu *telefone cadastrado* ou seu *ID de usuário* (ex: USR1712...).`
}

func msgIdentityHint() string {
	return `Não reconheci essa identificação.

Envie o *telefone* cadastrado (somente números) ou seu *ID de usuário* para começar.`
}

func msgUnknownUser() string {
	return `❌ Não encontrei um usuário ativo com essa identificação.

Confira o número e tente de novo, ou fale com o administrador do pátio.`
}

func msgCodeSent(code string) string {
	return fmt.Sprintf(`🔑 Seu código de acesso: *%s*

Digite o código de 6 dígitos para confirmar. Ele vale por 10 minutos.`, code)
}

func msgCodeInvalid(remaining int) string {
	plural := "tentativas"
	if remaining == 1 {
		plural = "tentativa"
	}
	return fmt.Sprintf(`❌ Código incorreto. Você ainda tem *%d %s*.`, remaining, plural)
}

func msgTooManyAttempts() string {
	return `🚫 *Muitas tentativas incorretas.*

Por segurança, o código foi bloqueado. Envie sua identificação novamente para receber um novo código.`
}

func msgCodeExpired() string {
	return `⏰ Esse código expirou.

Envie sua identificação novamente para receber um novo código.`
}

func msgNoPendingCode() string {
	return `Não há código pendente para você.

Envie sua identificação (telefone ou ID) para receber um código de acesso.`
}

func msgAuthError() string {
	return `⚠️ Tive um problema ao verificar seu acesso. Tente novamente em instantes.`
}

func msgSessionExpired() string {
	return `⏰ Sua sessão expirou.

Envie sua identificação (telefone ou ID) para entrar de novo.`
}

func msgMenu(name string, admin bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🅿️ *Olá, %s!* O que deseja fazer?\n\n", firstName(name))
	b.WriteString(`1️⃣ Registrar *entrada*
2️⃣ Registrar *saída*
3️⃣ Cadastrar veículo
4️⃣ Cadastrar motorista
5️⃣ Enviar notificação`)
	if admin {
		b.WriteString("\n6️⃣ Gerenciar usuários")
	}
	b.WriteString("\n\nResponda com o número da opção. A qualquer momento: *menu*, *ajuda* ou *sair*.")
	return b.String()
}

func msgInvalidMenuChoice() string {
	return `Opção inválida. Responda com o *número* de uma das opções do menu, ou digite *menu* para vê-lo de novo.`
}

func msgPickListedOption() string {
	return `Responda com o *número* de uma das opções acima.`
}

func msgForbidden() string {
	return `🚫 Essa opção é restrita a administradores.`
}

func msgCancelled() string {
	return `Operação cancelada. ✅`
}

func msgLoggedOut() string {
	return `👋 Você saiu. Até a próxima!

Envie sua identificação quando quiser entrar de novo.`
}

func msgCorruptedState() string {
	return `⚠️ Algo se perdeu na nossa conversa e eu recomecei do zero.`
}

func msgInternalError() string {
	return `⚠️ Tive um problema inesperado ao processar sua mensagem. Tente novamente, por favor.`
}

// ---- plate recognition ----

func msgPlatePrompt(purpose string) string {
	return fmt.Sprintf(`📸 *Registro de %s*

Envie uma *foto da placa* do veículo, ou digite a placa (ex: ABC1234 ou ABC1D23).`, purposeLabel(purpose))
}

func msgPlateInvalidFormat() string {
	return `❌ Placa em formato inválido.

Use o padrão antigo (ABC1234) ou Mercosul (ABC1D23), com letras maiúsculas. Você também pode enviar uma foto da placa.`
}

func msgRecognitionFailed() string {
	return `❌ Não consegui ler a placa nessa imagem.

Tente outra foto, com a placa mais centralizada e iluminada, ou digite a placa manualmente.`
}

func msgBelowConfidence(plate string, confidence float64) string {
	return fmt.Sprintf(`🔍 Li *%s*, mas com confiança baixa (%.0f%%).

Envie uma foto melhor ou digite a placa manualmente para confirmar.`, plate, confidence)
}

func msgUnsupportedMedia() string {
	return `Só consigo processar *fotos* aqui. Envie uma imagem da placa ou digite a placa.`
}

func msgPlateKnown(purpose, plate string, confidence float64, v *models.Vehicle, d *models.Driver) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Placa reconhecida: *%s* (%.0f%%)\n\n", plate, confidence)
	if v != nil {
		fmt.Fprintf(&b, "🚗 %s, %s\n", v.VehicleModel, v.Color)
	}
	if d != nil {
		fmt.Fprintf(&b, "👤 Motorista: %s\n", d.Name)
	}
	fmt.Fprintf(&b, "\n1️⃣ Confirmar *%s*\n2️⃣ Tentar outra placa\n0️⃣ Voltar ao menu", purposeLabel(purpose))
	return b.String()
}

func msgPlateUnknown(plate string, confidence float64) string {
	return fmt.Sprintf(`🔍 Placa reconhecida: *%s* (%.0f%%)

Esse veículo *não está cadastrado*.

1️⃣ Cadastrar este veículo agora
2️⃣ Tentar outra placa
0️⃣ Voltar ao menu`, plate, confidence)
}

func msgEntryRegistered(plate string, at time.Time) string {
	return fmt.Sprintf(`✅ *Entrada registrada!*

🚗 Placa: %s
🕐 Horário: %s`, plate, at.Format("02/01/2006 15:04"))
}

func msgExitRegistered(plate string, at time.Time, dur time.Duration) string {
	return fmt.Sprintf(`✅ *Saída registrada!*

🚗 Placa: %s
🕐 Horário: %s
⏱️ Permanência: %s`, plate, at.Format("02/01/2006 15:04"), formatDuration(dur))
}

func msgAlreadyParked(plate string) string {
	return fmt.Sprintf(`⚠️ O veículo *%s* já está no pátio com entrada em aberto.

1️⃣ Confirmar *saída* dele
2️⃣ Tentar outra placa
0️⃣ Voltar ao menu`, plate)
}

func msgNoOpenEntry(plate string) string {
	return fmt.Sprintf(`⚠️ Não há entrada em aberto para *%s*.

2️⃣ Tentar outra placa
0️⃣ Voltar ao menu`, plate)
}

// ---- vehicle registration ----

func msgVehiclePlatePrompt() string {
	return `🚗 *Cadastro de veículo*

Qual a *placa*? (ex: ABC1234 ou ABC1D23)`
}

func msgVehicleStartWithPlate(plate string) string {
	return fmt.Sprintf(`🚗 Cadastrando o veículo *%s*.

Qual o *modelo*? (ex: Fiat Argo)`, plate)
}

func msgVehiclePlateTaken(plate string) string {
	return fmt.Sprintf(`⚠️ A placa *%s* já está cadastrada.

Digite outra placa ou *cancelar* para voltar ao menu.`, plate)
}

func msgVehicleModelPrompt() string {
	return `Qual o *modelo* do veículo? (ex: Fiat Argo)`
}

func msgVehicleColorPrompt() string {
	return `Qual a *cor*?`
}

func msgVehicleDriverPrompt() string {
	return `Qual o *CPF do motorista* responsável? (somente números)

Se não quiser vincular um motorista agora, responda *pular*.`
}

func msgDriverNotFound(document string) string {
	return fmt.Sprintf(`🔍 Não encontrei motorista com o CPF *%s*.

1️⃣ Cadastrar esse motorista agora
2️⃣ Informar outro CPF
0️⃣ Continuar *sem* motorista`, document)
}

func msgVehicleConfirm(plate, model, color, driverName string) string {
	var b strings.Builder
	b.WriteString("📋 *Confirme os dados do veículo:*\n\n")
	fmt.Fprintf(&b, "🚗 Placa: %s\n", plate)
	fmt.Fprintf(&b, "📝 Modelo: %s\n", model)
	fmt.Fprintf(&b, "🎨 Cor: %s\n", color)
	if driverName != "" {
		fmt.Fprintf(&b, "👤 Motorista: %s\n", driverName)
	}
	b.WriteString("\n1️⃣ Confirmar cadastro\n0️⃣ Cancelar")
	return b.String()
}

func msgVehicleCreated(plate string) string {
	return fmt.Sprintf(`🎉 Veículo *%s* cadastrado com sucesso!`, plate)
}

// ---- driver registration ----

func msgDriverNamePrompt() string {
	return `👤 *Cadastro de motorista*

Qual o *nome completo*?`
}

func msgDriverDocumentPrompt() string {
	return `Qual o *CPF*? (somente números)`
}

func msgDriverDocumentTaken(document string) string {
	return fmt.Sprintf(`⚠️ Já existe motorista cadastrado com o CPF *%s*.

Digite outro CPF ou *cancelar* para voltar ao menu.`, document)
}

func msgDriverPhonePrompt() string {
	return `Qual o *WhatsApp* do motorista, com DDD? (ex: 11987654321)`
}

func msgInvalidCPF() string {
	return `❌ CPF inválido. Digite os *11 números* do CPF.`
}

func msgInvalidPhone() string {
	return `❌ Número inválido. Digite o WhatsApp com *DDD* (ex: 11987654321).`
}

func msgDriverConfirm(name, document, phone string) string {
	return fmt.Sprintf(`📋 *Confirme os dados do motorista:*

👤 Nome: %s
🪪 CPF: %s
📱 WhatsApp: %s

1️⃣ Confirmar cadastro
0️⃣ Cancelar`, name, document, phone)
}

func msgDriverCreated(name string) string {
	return fmt.Sprintf(`🎉 Motorista *%s* cadastrado com sucesso!`, name)
}

// ---- notifications ----

func msgNotifyTargetPrompt() string {
	return `📨 *Enviar notificação*

Para quem? Digite a *placa* do veículo (aviso o motorista vinculado) ou um *telefone* com DDD.`
}

func msgNotifyTargetUnknown() string {
	return `❌ Não encontrei destinatário.

Digite uma placa cadastrada, ou um telefone com DDD (ex: 11987654321).`
}

func msgNotifyVehicleHasNoDriver(plate string) string {
	return fmt.Sprintf(`⚠️ O veículo *%s* não tem motorista com WhatsApp vinculado.

Digite outro destino ou *cancelar*.`, plate)
}

func msgNotifyMessagePrompt(recipient string) string {
	return fmt.Sprintf(`Destinatário: *%s*

Agora digite a *mensagem* que devo enviar.`, recipient)
}

func msgNotifyConfirm(recipient, message string) string {
	return fmt.Sprintf(`📋 *Confirme o envio:*

📱 Para: %s
💬 Mensagem: "%s"

1️⃣ Enviar
0️⃣ Cancelar`, recipient, message)
}

func msgNotifySent(recipient string) string {
	return fmt.Sprintf(`✅ Notificação enviada para *%s*.`, recipient)
}

func msgNotifyFailed() string {
	return `❌ Não consegui entregar a mensagem. Verifique o número e tente novamente.`
}

func msgNotifyFromParking(operator, plate, text string) string {
	return fmt.Sprintf(`📢 *Recado do estacionamento* (%s)%s

%s`, operator, plateSuffix(plate), text)
}

func plateSuffix(plate string) string {
	if plate == "" {
		return ""
	}
	return fmt.Sprintf(" sobre o veículo *%s*:", plate)
}

// ---- user management ----

func msgUsersMenu() string {
	return `👥 *Gerenciar usuários*

1️⃣ Cadastrar usuário
2️⃣ Desativar usuário
3️⃣ Listar usuários
0️⃣ Voltar ao menu`
}

func msgUserNamePrompt() string {
	return `Qual o *nome* do novo usuário?`
}

func msgUserPhonePrompt() string {
	return `Qual o *WhatsApp* dele, com DDD? (ex: 11987654321)`
}

func msgUserPhoneTaken(phone string) string {
	return fmt.Sprintf(`⚠️ Já existe usuário com o WhatsApp *%s*.

Digite outro número ou *cancelar*.`, phone)
}

func msgUserRolePrompt() string {
	return `Qual o *perfil*?

1️⃣ Operador
2️⃣ Administrador`
}

func msgUserConfirm(name, phone, role string) string {
	return fmt.Sprintf(`📋 *Confirme o novo usuário:*

👤 Nome: %s
📱 WhatsApp: %s
🔑 Perfil: %s

1️⃣ Confirmar
0️⃣ Cancelar`, name, phone, roleLabel(role))
}

func msgUserCreated(name, userID string) string {
	return fmt.Sprintf(`🎉 Usuário *%s* cadastrado! ID: %s

Avisei no WhatsApp dele como entrar.`, name, userID)
}

func msgUserWelcomeNotice(name string) string {
	return fmt.Sprintf(`👋 Olá, %s! Você foi cadastrado no sistema do estacionamento.

Envie *seu telefone* aqui nesta conversa para receber o código de acesso.`, firstName(name))
}

func msgUserDisablePrompt() string {
	return `Qual o *WhatsApp* do usuário a desativar?`
}

func msgUserDisableConfirm(name, phone string) string {
	return fmt.Sprintf(`⚠️ Desativar o usuário *%s* (%s)?

Ele perderá o acesso imediatamente.

1️⃣ Desativar
0️⃣ Cancelar`, name, phone)
}

func msgUserDisabled(name string) string {
	return fmt.Sprintf(`✅ Usuário *%s* desativado.`, name)
}

func msgUserNotFoundByPhone() string {
	return `❌ Não encontrei usuário com esse WhatsApp. Digite outro número ou *cancelar*.`
}

func msgCannotDisableSelf() string {
	return `🚫 Você não pode desativar a si mesmo.`
}

func msgUserList(users []models.User) string {
	if len(users) == 0 {
		return `Nenhum usuário cadastrado ainda.`
	}
	var b strings.Builder
	b.WriteString("👥 *Usuários cadastrados:*\n")
	for _, u := range users {
		status := "✅"
		if !u.Active {
			status = "🚫"
		}
		fmt.Fprintf(&b, "\n%s *%s* (%s)\n    📱 %s · %s", status, u.Name, u.UserID, u.WhatsApp, roleLabel(u.Role))
	}
	return b.String()
}

// ---- contextual help ----

func msgHelp(state State) string {
	var body string
	switch state {
	case StateIdle, StateAwaitingIdentity:
		body = "Envie seu *telefone cadastrado* ou *ID de usuário* para entrar."
	case StateAwaitingCode:
		body = "Digite o *código de 6 dígitos* que enviei. Se expirou, mande sua identificação de novo."
	case StateMenu:
		body = "Responda com o *número* de uma opção do menu. Digite *menu* para vê-lo de novo."
	case StateRecognizingPlate:
		body = "Envie uma *foto da placa* ou digite a placa (ABC1234 ou ABC1D23)."
	case StatePlateAction:
		body = "Responda com o *número* de uma das opções mostradas para a placa reconhecida."
	case StateRegisteringVehicle:
		body = "Estamos cadastrando um veículo. Responda a pergunta atual ou digite *cancelar*."
	case StateRegisteringDriver:
		body = "Estamos cadastrando um motorista. Responda a pergunta atual ou digite *cancelar*."
	case StateSendingNotification:
		body = "Estamos montando uma notificação. Responda a pergunta atual ou digite *cancelar*."
	case StateManagingUsers:
		body = "Gerência de usuários. Responda a pergunta atual ou digite *cancelar*."
	default:
		body = "Digite *menu* para ver as opções."
	}
	return fmt.Sprintf(`ℹ️ *Ajuda*

%s

Comandos: *menu* · *cancelar* · *ajuda* · *sair*`, body)
}

// ---- formatting helpers ----

func purposeLabel(purpose string) string {
	if purpose == PurposeExit {
		return "saída"
	}
	return "entrada"
}

func roleLabel(role string) string {
	if role == models.RoleAdmin {
		return "Administrador"
	}
	return "Operador"
}

func firstName(name string) string {
	if i := strings.IndexByte(name, ' '); i > 0 {
		return name[:i]
	}
	return name
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dmin", m)
	}
	return fmt.Sprintf("%dh %02dmin", h, m)
}
