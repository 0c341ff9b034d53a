//go:build ignore

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const baseURL = "http://localhost:8080/api/v1"

func main() {
	// Проверяем health endpoint
	fmt.Println("Проверяем health endpoint...")
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		fmt.Printf("Ошибка при обращении к health endpoint: %v\n", err)
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Printf("Ошибка чтения ответа: %v\n", err)
		return
	}

	fmt.Printf("Health check ответ (статус %d):\n%s\n\n", resp.StatusCode, string(body))

	// Если переданы директории кадров, запускаем прогон
	if len(os.Args) > 2 {
		if err := testRun(os.Args[1], os.Args[2]); err != nil {
			fmt.Printf("Ошибка при запуске прогона: %v\n", err)
		}
	} else {
		fmt.Println("Для запуска прогона: go run test_client.go <кадры_трансляции> <кадры_тактической_камеры>")
	}
}

func testRun(broadcastDir, tacticamDir string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"name":             "smoke test",
		"broadcast_frames": broadcastDir,
		"tacticam_frames":  tacticamDir,
		"frame_limit":      50,
	})
	if err != nil {
		return fmt.Errorf("ошибка кодирования запроса: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Minute}
	req, err := http.NewRequest(http.MethodPost, baseURL+"/runs", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	fmt.Println("Отправляем запрос на прогон...")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	fmt.Printf("Ответ прогона (статус %d):\n%s\n", resp.StatusCode, string(respBody))
	return nil
}
