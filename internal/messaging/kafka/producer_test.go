package kafka

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndSucceed()

	p := newProducer(mockProducer)

	err := p.PublishEvent(TopicOrderEvents, "order-1", map[string]string{"status": "PENDING"})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newProducer(mockProducer)

	err := p.PublishEvent(TopicOrderEvents, "order-1", nil)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	p := newProducer(mockProducer)

	err := p.PublishEvent(TopicOrderEvents, "order-1", make(chan int))
	assert.Error(t, err)
	require.NoError(t, p.Close())
}
