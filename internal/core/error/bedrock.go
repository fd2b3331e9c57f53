package errx

import (
	"errors"

	"github.com/aws/smithy-go"
)

// ServiceUnavailableMessage is the safe message for connectivity-class failures.
const ServiceUnavailableMessage = "Unable to connect to required services"

// WrapBedrock maps a Bedrock runtime error to the unified Error type.
// Throttling and availability failures count as connectivity so the protocol
// layer serves them as SERVICE_UNAVAILABLE; everything else is an agent
// execution failure.
func WrapBedrock(err error) *Error {
	if err == nil {
		return nil
	}

	if IsConnectivity(err) {
		return Wrap(err, CodeServiceUnavailable, ServiceUnavailableMessage)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceUnavailableException",
			"ModelNotReadyException", "ServiceQuotaExceededException":
			return Wrap(err, CodeServiceUnavailable, ServiceUnavailableMessage)
		}
	}

	return Wrap(err, CodeAgentExecution, "Agent execution failed")
}
