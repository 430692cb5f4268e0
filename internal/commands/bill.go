package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"github.com/susu3304/tablesplit/internal/ledger"
	"github.com/susu3304/tablesplit/internal/split"
)

// BillService is the part of the split service the /bill command uses.
type BillService interface {
	Session(ctx context.Context, id int64) (ledger.Session, error)
	Status(ctx context.Context, sessionID int64) (ledger.Status, error)
	CloseIfComplete(ctx context.Context, sessionID int64) (ledger.Session, bool, error)
	EndSession(ctx context.Context, sessionID int64, to ledger.SessionStatus) (ledger.Session, error)
	Division(ctx context.Context, id uuid.UUID) (ledger.PaymentDivision, error)
	Confirm(ctx context.Context, divisionID uuid.UUID, outcome ledger.DivisionStatus, note string) (ledger.PaymentDivision, error)
}

// StaffChecker resolves a Discord user's role at a restaurant.
type StaffChecker interface {
	StaffRole(ctx context.Context, restaurantID int64, userID string) (string, error)
}

func HandleBill(s *discordgo.Session, i *discordgo.InteractionCreate, svc BillService, staff StaffChecker) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		respondText(s, i, "Nenhum subcomando informado")
		return
	}
	respondText(s, i, RunBill(context.Background(), svc, staff, interactionUserID(i), data.Options[0]))
}

// RunBill executes one /bill subcommand for userID and returns the reply.
func RunBill(ctx context.Context, svc BillService, staff StaffChecker, userID string, sub *discordgo.ApplicationCommandInteractionDataOption) string {
	if sub.Name == "confirm" {
		return runConfirm(ctx, svc, staff, userID, sub)
	}

	sessionID := getIntOption(sub.Options, "session")
	if sessionID == nil {
		return "Informe o número da sessão"
	}
	sess, err := svc.Session(ctx, *sessionID)
	if err != nil {
		return describeError(err)
	}
	role, err := staff.StaffRole(ctx, sess.RestaurantID, userID)
	if err != nil {
		return describeError(err)
	}

	switch sub.Name {
	case "status":
		st, err := svc.Status(ctx, sess.ID)
		if err != nil {
			return describeError(err)
		}
		return FormatStatus(sess, st)
	case "close":
		closed, ok, err := svc.CloseIfComplete(ctx, sess.ID)
		if err != nil {
			return describeError(err)
		}
		if !ok {
			if closed.Terminal() {
				return fmt.Sprintf("Mesa %s já está %s", sess.TableRef, statusLabel(string(closed.Status)))
			}
			st, err := svc.Status(ctx, sess.ID)
			if err != nil {
				return describeError(err)
			}
			return "A mesa ainda não pode ser fechada\n" + FormatStatus(sess, st)
		}
		return fmt.Sprintf("Mesa %s fechada", sess.TableRef)
	case "cancel":
		if !split.CanEndSession(role) {
			return "Somente o gerente pode cancelar uma mesa"
		}
		if _, err := svc.EndSession(ctx, sess.ID, ledger.SessionCancelled); err != nil {
			return describeError(err)
		}
		return fmt.Sprintf("Mesa %s cancelada", sess.TableRef)
	}
	return "Subcomando desconhecido"
}

func runConfirm(ctx context.Context, svc BillService, staff StaffChecker, userID string, sub *discordgo.ApplicationCommandInteractionDataOption) string {
	rawID := getStringOption(sub.Options, "division")
	outcome := getStringOption(sub.Options, "outcome")
	if rawID == nil || outcome == nil {
		return "division e outcome são obrigatórios"
	}
	id, err := uuid.Parse(strings.TrimSpace(*rawID))
	if err != nil {
		return "ID de pagamento inválido"
	}

	div, err := svc.Division(ctx, id)
	if err != nil {
		return describeError(err)
	}
	sess, err := svc.Session(ctx, div.SessionID)
	if err != nil {
		return describeError(err)
	}
	role, err := staff.StaffRole(ctx, sess.RestaurantID, userID)
	if err != nil {
		return describeError(err)
	}
	if !split.CanConfirm(role) {
		return "Somente garçons e gerentes confirmam pagamentos"
	}

	div, err = svc.Confirm(ctx, id, ledger.DivisionStatus(*outcome), fmt.Sprintf("confirmado via Discord por <@%s>", userID))
	if err != nil {
		return describeError(err)
	}
	return fmt.Sprintf("Pagamento de %s (R$ %s) está %s", div.PayerName, div.Amount.StringFixed(2), statusLabel(string(div.Status)))
}

// FormatStatus renders the payment status of a table.
func FormatStatus(sess ledger.Session, st ledger.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Mesa %s** (sessão %d, %s)\n", sess.TableRef, sess.ID, statusLabel(string(st.SessionStatus)))
	fmt.Fprintf(&b, "Total: R$ %s\n", st.TotalAmount.StringFixed(2))
	fmt.Fprintf(&b, "Pago: R$ %s\n", st.PaidAmount.StringFixed(2))
	if st.PendingAmount.IsPositive() {
		fmt.Fprintf(&b, "Aguardando confirmação: R$ %s\n", st.PendingAmount.StringFixed(2))
	}
	fmt.Fprintf(&b, "Restante: R$ %s", st.RemainingAmount.StringFixed(2))
	for _, d := range st.Divisions {
		fmt.Fprintf(&b, "\n- %s: R$ %s %s `%s`", d.PayerName, d.Amount.StringFixed(2), statusLabel(string(d.Status)), d.ID)
	}
	return b.String()
}

func statusLabel(status string) string {
	switch status {
	case string(ledger.DivisionPaid):
		return "pago"
	case string(ledger.DivisionPending):
		return "pendente"
	case string(ledger.DivisionFailed):
		return "falhou"
	case string(ledger.SessionOpen):
		return "aberta"
	case string(ledger.SessionInProgress):
		return "em andamento"
	case string(ledger.SessionClosed):
		return "fechada"
	case string(ledger.SessionCancelled):
		return "cancelada"
	}
	return strings.ToLower(status)
}

func describeError(err error) string {
	switch {
	case errors.Is(err, split.ErrNotStaff):
		return "Você não faz parte da equipe deste restaurante"
	case errors.Is(err, ledger.ErrSessionNotFound):
		return "Sessão não encontrada"
	case errors.Is(err, ledger.ErrDivisionNotFound):
		return "Pagamento não encontrado"
	case errors.Is(err, ledger.ErrUnavailable):
		return "Serviço indisponível, tente novamente em instantes"
	case ledger.IsRejection(err):
		return "Não foi possível: " + err.Error()
	}
	return "Erro inesperado"
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func respondText(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content},
	})
}

func getIntOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *int64 {
	for _, o := range opts {
		if o.Name == name {
			v := o.IntValue()
			return &v
		}
	}
	return nil
}

func getStringOption(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) *string {
	for _, o := range opts {
		if o.Name == name {
			v := o.StringValue()
			return &v
		}
	}
	return nil
}
