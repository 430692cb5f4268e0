package commands

import "github.com/bwmarrin/discordgo"

func GetCommands() []*discordgo.ApplicationCommand {
	sessionOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "session",
		Description: "Número da sessão da mesa",
		Required:    true,
		MinValue:    floatPtr(1),
	}
	return []*discordgo.ApplicationCommand{
		{
			Name:         "bill",
			Description:  "Conta dividida das mesas",
			DMPermission: boolPtr(false),
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Mostra quanto já foi pago e quanto falta",
					Options:     []*discordgo.ApplicationCommandOption{sessionOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "close",
					Description: "Fecha a mesa se a conta estiver quitada",
					Options:     []*discordgo.ApplicationCommandOption{sessionOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "cancel",
					Description: "Cancela a mesa (somente gerente)",
					Options:     []*discordgo.ApplicationCommandOption{sessionOption},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "confirm",
					Description: "Registra o resultado de um pagamento",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "division",
							Description: "ID do pagamento",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "outcome",
							Description: "Resultado",
							Required:    true,
							Choices: []*discordgo.ApplicationCommandOptionChoice{
								{Name: "Pago", Value: "PAID"},
								{Name: "Falhou", Value: "FAILED"},
							},
						},
					},
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func floatPtr(f float64) *float64 {
	return &f
}
