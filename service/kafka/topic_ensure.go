package kafka

import (
	"PShare/logger"
	"PShare/tools/errs"
	"errors"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// EnsureTopic creates topic when missing and grows its partition count up
// to the configured value. Kafka never shrinks partitions.
func EnsureTopic(admin sarama.ClusterAdmin, topic string, c Config) error {
	descs, err := admin.DescribeTopics([]string{topic})
	if err != nil {
		return errs.WrapMsg(err, "describe topic", "topic", topic)
	}
	exists := len(descs) == 1 && descs[0].Err == sarama.ErrNoError

	if !exists {
		minISR := "1"
		if c.ReplicationFactor >= 3 {
			minISR = "2"
		}
		td := &sarama.TopicDetail{
			NumPartitions:     c.PartitionsPerTopic,
			ReplicationFactor: c.ReplicationFactor,
			ConfigEntries: map[string]*string{
				"cleanup.policy":                 strPtr("delete"),
				"min.insync.replicas":            strPtr(minISR),
				"unclean.leader.election.enable": strPtr("false"),
				"compression.type":               strPtr("producer"),
			},
		}
		if err := admin.CreateTopic(topic, td, false); err != nil {
			var te *sarama.TopicError
			if (errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists) || errors.Is(err, sarama.ErrTopicAlreadyExists) {
				logger.Info("[Topic] exists (race)", zap.String("topic", topic))
				return nil
			}
			return errs.WrapMsg(err, "create topic", "topic", topic)
		}
		logger.Info("[Topic] created", zap.String("topic", topic),
			zap.Int32("partitions", c.PartitionsPerTopic), zap.Int16("rf", c.ReplicationFactor))
		return nil
	}

	cur := int32(len(descs[0].Partitions))
	if c.PartitionsPerTopic > cur {
		if err := admin.CreatePartitions(topic, c.PartitionsPerTopic, nil, false); err != nil {
			return errs.WrapMsg(err, "expand partitions", "topic", topic, "from", cur, "to", c.PartitionsPerTopic)
		}
		logger.Info("[Topic] partitions expanded", zap.String("topic", topic), zap.Int32("from", cur), zap.Int32("to", c.PartitionsPerTopic))
		return nil
	}
	logger.Info("[Topic] exists", zap.String("topic", topic), zap.Int32("partitions", cur))
	return nil
}

func strPtr(s string) *string { return &s }
