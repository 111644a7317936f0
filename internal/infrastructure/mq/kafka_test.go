package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_Publish(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"kind":"CHARGE_CREDIT"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})

	p := NewProducerFrom(sp)
	require.NoError(t, p.Publish("points.ledger", "alice", `{"kind":"CHARGE_CREDIT"}`))
	require.NoError(t, p.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFrom(sp)
	err := p.Publish("points.ledger", "alice", "{}")
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}
