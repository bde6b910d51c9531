// Package browser отвечает за всё, что касается страниц браузера.
//
// # Обзор
//
// Ядро воркера не знает про конкретный движок автоматизации:
// оно работает с интерфейсами Page и Provider. Реализация на chromedp
// (ChromeProvider) выдаёт отдельную вкладку на каждый Acquire, поэтому
// одновременно выполняющиеся tasks никогда не делят страницу.
//
// # Navigator
//
// Navigator оборачивает одну навигацию:
//
//  1. Список стратегий загрузки: при progressive retry —
//     networkidle → load → domcontentloaded, каждая не дольше min(30s, baseTimeout);
//     иначе одна стратегия из опций.
//  2. Перед первой попыткой — случайная «человеческая» задержка 1–3s.
//  3. После успешной навигации — короткая пауза на client-side redirect
//     и проверка anti-bot challenge (title/content маркеры).
//  4. Если challenge обнаружен — опрос с фиксированным интервалом до исчезновения
//     маркеров или до challengeTimeout.
//  5. Ошибка навигации → следующая стратегия; после последней — результат
//     с последней ошибкой, состоянием challenge и лучшим известным URL.
//
// Таймаут ожидания challenge независим от таймаута навигации и добавляется к нему.
//
// Navigator никогда не возвращает error: исход описывает NavigationResult.
//
// # SessionRegistry
//
// Для «долгоживущих» видов страниц (kind) реестр держит ровно одну страницу
// на kind и выдаёт её эксклюзивно: второй Acquire того же kind ждёт Release.
package browser
