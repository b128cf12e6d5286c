package notify

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// callCreator is the part of the Twilio REST API used to place calls
type callCreator interface {
	CreateCall(params *twilioApi.CreateCallParams) (*twilioApi.ApiV2010Call, error)
}

// TwilioCaller places text-to-speech calls through Twilio
type TwilioCaller struct {
	calls callCreator
}

func NewTwilioCaller(accountSID, authToken string) *TwilioCaller {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioCaller{calls: client.Api}
}

func (t *TwilioCaller) SendVoiceCall(ctx context.Context, call VoiceCall) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if call.From == "" || call.To == "" {
		return fmt.Errorf("invalid phone numbers: from=%q to=%q", call.From, call.To)
	}

	params := &twilioApi.CreateCallParams{}
	params.SetTo(call.To)
	params.SetFrom(call.From)
	params.SetTwiml(verificationTwiml(call.SpokenDigits))

	if _, err := t.calls.CreateCall(params); err != nil {
		return fmt.Errorf("failed to place call: %w", err)
	}

	return nil
}

// verificationTwiml reads the code twice so it can be noted down
func verificationTwiml(spokenDigits string) string {
	sentence := fmt.Sprintf("Your verification code is %s.", spokenDigits)
	return fmt.Sprintf("<Response><Say>%s %s</Say></Response>", sentence, sentence)
}
